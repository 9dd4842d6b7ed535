package settings

import (
	"apollocfg/internal/types"
	"context"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"
)

const (
	TagKey     = "apollo"
	TagEnv     = "env"
	TagDefault = "default"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load fills the exported fields of the struct target points to. Each field reads the key named by its apollo
// tag, or its field name. A remote value wins over the variable named by the env tag, which wins over the
// default tag. Fields with none of the three keep their value. Nested structs are walked; apollo:"-" skips a
// field.
func (s *Source) Load(ctx context.Context, target any) error {
	tv := reflect.ValueOf(target)
	if tv.Kind() != reflect.Ptr || tv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("target must be a pointer to struct")
	}
	snap := s.snapshot(ctx)
	caseSensitive := s.client.Options().CaseSensitive
	return bindStructFields(func(key string) (string, bool) {
		return lookup(snap, key, caseSensitive)
	}, tv.Elem())
}

func bindStructFields(remote func(string) (string, bool), structValue reflect.Value) error {
	structType := structValue.Type()

	for i := 0; i < structValue.NumField(); i++ {
		field := structValue.Field(i)
		fieldType := structType.Field(i)

		if !field.CanSet() {
			continue
		}
		key := fieldType.Tag.Get(TagKey)
		if key == "-" {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := bindStructFields(remote, field); err != nil {
				return fmt.Errorf("failed to bind nested struct %s: %w", fieldType.Name, err)
			}
			continue
		}
		if key == "" {
			key = fieldType.Name
		}

		value, found := remote(key)
		if !found {
			if env := fieldType.Tag.Get(TagEnv); env != "" {
				value, found = os.LookupEnv(env)
			}
		}
		if !found {
			value, found = fieldType.Tag.Lookup(TagDefault)
		}
		if !found {
			continue
		}

		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("failed to set field %s from %q: %w", fieldType.Name, key, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
		return nil
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported field type: %s", field.Type())
		}
		field.Set(reflect.ValueOf(types.SplitList(value)).Convert(field.Type()))
		return nil
	}

	if value == "" {
		return nil
	}
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			intValue, err := strconv.ParseInt(value, 10, field.Type().Bits())
			if err != nil {
				return err
			}
			field.SetInt(intValue)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		uintValue, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(uintValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Float32, reflect.Float64:
		floatValue, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}
