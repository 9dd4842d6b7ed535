package notifier

import (
	"apollocfg/internal/apollotest"
	"apollocfg/internal/discovery"
	"apollocfg/internal/transport"
	"apollocfg/internal/types"
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type countingRefresher struct {
	mu    sync.Mutex
	calls map[string]int
}

func (r *countingRefresher) Fetch(ctx context.Context, namespace string) types.FetchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[namespace]++
	return types.FetchResult{
		Snapshot: types.NewSnapshot(namespace, "r", map[string]string{"k": "v"}),
		Source:   types.SourceFresh,
	}
}

func (r *countingRefresher) count(namespace string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[namespace]
}

type NotifierTestSuite struct {
	suite.Suite

	server    *apollotest.Server
	refresher *countingRefresher
	notifier  *Notifier
}

func TestNotifierTestSuite(t *testing.T) {
	suite.Run(t, new(NotifierTestSuite))
}

func (s *NotifierTestSuite) SetupTest() {
	s.server = apollotest.NewServer("app")
	s.refresher = &countingRefresher{}

	opts := types.DefaultOptions()
	opts.ServerURL = s.server.URL
	opts.AppID = "app"
	opts.Namespaces = []string{"application", "db"}
	opts.Timeout = time.Second
	opts.PollTimeout = 2 * time.Second
	opts.Discovery = false

	getter := transport.NewClient("app", "")
	locator := discovery.NewLocator(getter, opts.ServerURL, false, opts.Timeout)
	s.notifier = New(getter, locator, s.refresher, opts, WithBackoff(10*time.Millisecond, 50*time.Millisecond))
}

func (s *NotifierTestSuite) TearDownTest() {
	s.notifier.Stop()
	s.server.Close()
}

func ok(notifications ...types.Notification) apollotest.PollReply {
	return apollotest.PollReply{Status: http.StatusOK, Notifications: notifications}
}

func (s *NotifierTestSuite) TestInitialIDs() {
	id, found := s.notifier.NotificationID("application")
	s.True(found)
	s.Equal(types.InitialNotificationID, id)
	_, found = s.notifier.NotificationID("other")
	s.False(found)
	s.Equal([]string{"application", "db"}, s.notifier.Namespaces())
}

func (s *NotifierTestSuite) TestChangeTriggersFetch() {
	s.server.QueuePoll(ok(types.Notification{NamespaceName: "application", NotificationID: 5}))

	changed, err := s.notifier.PollOnce(context.Background())
	s.Require().NoError(err)
	s.Equal([]string{"application"}, changed)

	id, _ := s.notifier.NotificationID("application")
	s.Equal(int64(5), id)
	s.Equal(1, s.refresher.count("application"))
	s.Equal(0, s.refresher.count("db"))
}

func (s *NotifierTestSuite) TestConvergesAndFetchesOncePerChange() {
	s.server.QueuePoll(
		ok(types.Notification{NamespaceName: "application", NotificationID: 1}),
		ok(types.Notification{NamespaceName: "application", NotificationID: 2}),
		ok(types.Notification{NamespaceName: "application", NotificationID: 2}),
		apollotest.PollReply{Status: http.StatusNotModified},
		ok(types.Notification{NamespaceName: "application", NotificationID: 7}),
		ok(types.Notification{NamespaceName: "application", NotificationID: 3}),
	)
	for i := 0; i < 6; i++ {
		_, err := s.notifier.PollOnce(context.Background())
		s.Require().NoError(err)
	}

	id, _ := s.notifier.NotificationID("application")
	s.Equal(int64(7), id)
	s.Equal(3, s.refresher.count("application"))
}

func (s *NotifierTestSuite) TestRequestAdvertisesCurrentIDs() {
	s.server.QueuePoll(
		ok(types.Notification{NamespaceName: "db", NotificationID: 9}),
		apollotest.PollReply{Status: http.StatusNotModified},
	)
	_, err := s.notifier.PollOnce(context.Background())
	s.Require().NoError(err)
	_, err = s.notifier.PollOnce(context.Background())
	s.Require().NoError(err)

	queries := s.server.PollQueries()
	s.Require().Len(queries, 2)
	first, err := url.ParseQuery(queries[0])
	s.Require().NoError(err)
	s.Equal("app", first.Get("appId"))
	s.Equal("default", first.Get("cluster"))
	s.JSONEq(`[{"namespaceName":"application","notificationId":-1},{"namespaceName":"db","notificationId":-1}]`,
		first.Get("notifications"))

	second, err := url.ParseQuery(queries[1])
	s.Require().NoError(err)
	s.JSONEq(`[{"namespaceName":"application","notificationId":-1},{"namespaceName":"db","notificationId":9}]`,
		second.Get("notifications"))
}

func (s *NotifierTestSuite) TestMessagesMerged() {
	s.server.QueuePoll(
		ok(types.Notification{NamespaceName: "application", NotificationID: 1, Messages: &types.NotificationMessages{
			Details: map[string]int64{"app+default+application": 1, "app+gray+application": 4},
		}}),
		ok(types.Notification{NamespaceName: "application", NotificationID: 2, Messages: &types.NotificationMessages{
			Details: map[string]int64{"app+default+application": 2},
		}}),
	)
	for i := 0; i < 2; i++ {
		_, err := s.notifier.PollOnce(context.Background())
		s.Require().NoError(err)
	}
	s.Equal(map[string]int64{"app+default+application": 2, "app+gray+application": 4}, s.notifier.Messages("application"))
	s.Empty(s.notifier.Messages("db"))
}

func (s *NotifierTestSuite) TestUnknownNamespaceIgnored() {
	s.server.QueuePoll(ok(types.Notification{NamespaceName: "other", NotificationID: 3}))
	changed, err := s.notifier.PollOnce(context.Background())
	s.NoError(err)
	s.Empty(changed)
	s.Equal(0, s.refresher.count("other"))
}

func (s *NotifierTestSuite) TestNotModified() {
	s.server.QueuePoll(apollotest.PollReply{Status: http.StatusNotModified})
	changed, err := s.notifier.PollOnce(context.Background())
	s.NoError(err)
	s.Empty(changed)
}

func (s *NotifierTestSuite) TestServerError() {
	s.server.QueuePoll(apollotest.PollReply{Status: http.StatusInternalServerError})
	_, err := s.notifier.PollOnce(context.Background())
	var te *types.TransportError
	s.Require().ErrorAs(err, &te)
	s.Equal(types.KindServer, te.Kind)
	s.Equal(http.StatusInternalServerError, te.StatusCode)
}

func (s *NotifierTestSuite) TestLoopDeliversUpdatesAfterErrors() {
	var mu sync.Mutex
	var got []int64
	s.notifier.OnUpdate(func(ctx context.Context, namespace string, id int64, res types.FetchResult) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, id)
	})
	s.server.QueuePoll(
		apollotest.PollReply{Status: http.StatusInternalServerError},
		apollotest.PollReply{Status: http.StatusNotModified},
		ok(types.Notification{NamespaceName: "application", NotificationID: 4}),
		ok(types.Notification{NamespaceName: "application", NotificationID: 6}),
	)

	s.notifier.Start(context.Background())
	s.True(s.notifier.Running())
	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 3*time.Second, 10*time.Millisecond)

	s.notifier.Stop()
	s.False(s.notifier.Running())
	mu.Lock()
	s.Equal([]int64{4, 6}, got)
	mu.Unlock()
}

func (s *NotifierTestSuite) TestStopInterruptsLongPoll() {
	s.server.SetHold(10 * time.Second)
	s.notifier.Start(context.Background())
	s.notifier.Start(context.Background())
	s.Eventually(func() bool { return len(s.server.PollQueries()) > 0 }, time.Second, 5*time.Millisecond)

	started := time.Now()
	s.notifier.Stop()
	s.Less(time.Since(started), 2*time.Second)
	s.notifier.Stop()
	s.False(s.notifier.Running())
}
