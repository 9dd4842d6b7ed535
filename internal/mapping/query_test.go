package mapping

import (
	"apollocfg/internal/types"
	"context"
	"time"
)

func (s *MappingTestSuite) TestEvalAny() {
	obj := map[string]any{
		"key1": "value1",
		"key2": map[string]any{
			"subkey1": "subvalue1",
			"subkey2": 42,
		},
		"key3": []any{"elem1", "elem2", "elem3"},
		"key4": nil,
	}

	v, err := EvalAny("key1", obj)
	s.NoError(err)
	s.Equal("value1", v.(string))

	v, err = EvalAny("key2.subkey2", obj)
	s.NoError(err)
	s.Equal(42, v.(int))

	v, err = EvalAny("key3[1]", obj)
	s.NoError(err)
	s.Equal("elem2", v.(string))

	v, err = EvalAny("key4", obj)
	s.NoError(err)
	s.Nil(v)

	v, err = EvalAny("nonexistent", obj)
	s.NoError(err)
	s.Nil(v)

	v, err = EvalAny("contains(key3, 'elem2')", obj)
	s.NoError(err)
	s.Equal(true, v.(bool))

	_, err = EvalAny("key3[", obj)
	s.Error(err)
}

func (s *MappingTestSuite) TestEvalString() {
	obj := map[string]any{"a": "x", "b": []any{1.0, 2.0}}

	v, err := EvalString("a", obj)
	s.NoError(err)
	s.Equal("x", *v)

	v, err = EvalString("b", obj)
	s.NoError(err)
	s.Equal("[1,2]", *v)

	v, err = EvalString("c", obj)
	s.NoError(err)
	s.Nil(v)
}

func (s *MappingTestSuite) TestQueryJSONValue() {
	ctx := context.Background()
	s.refresher.values = func(int) map[string]string {
		return map[string]string{
			"datasource": `{"primary":{"host":"db1","port":5432},"replicas":["db2","db3"]}`,
			"plain":      "not json",
		}
	}
	m := New("application", s.refresher, time.Minute, true)

	v, err := m.Query(ctx, "datasource", "primary.host")
	s.NoError(err)
	s.Equal("db1", v)

	v, err = m.Query(ctx, "datasource", "primary.port")
	s.NoError(err)
	s.Equal(5432.0, v)

	v, err = m.Query(ctx, "datasource", "length(replicas)")
	s.NoError(err)
	s.Equal(2.0, v)

	_, err = m.Query(ctx, "plain", "a")
	s.Error(err)

	_, err = m.Query(ctx, "missing", "a")
	s.ErrorIs(err, types.ErrNotFound)

	var ds struct {
		Replicas []string `json:"replicas"`
	}
	s.NoError(m.GetJSON(ctx, "datasource", &ds))
	s.Equal([]string{"db2", "db3"}, ds.Replicas)
}
