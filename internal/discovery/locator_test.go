package discovery

import (
	"apollocfg/internal/apollotest"
	"apollocfg/internal/transport"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type LocatorTestSuite struct {
	suite.Suite

	meta *apollotest.Server
}

func TestLocatorTestSuite(t *testing.T) {
	suite.Run(t, new(LocatorTestSuite))
}

func (s *LocatorTestSuite) SetupTest() {
	s.meta = apollotest.NewServer("app")
}

func (s *LocatorTestSuite) TearDownTest() {
	s.meta.Close()
}

func (s *LocatorTestSuite) newLocator(enabled bool) *Locator {
	return NewLocator(transport.NewClient("app", ""), s.meta.URL+"/", enabled, time.Second)
}

func (s *LocatorTestSuite) TestDisabledUsesServerURL() {
	s.meta.SetServices("http://10.0.0.1:8080")
	l := s.newLocator(false)
	s.Equal([]string{s.meta.URL}, l.Candidates(context.Background()))
	s.Equal(s.meta.URL, l.Current(context.Background()))
}

func (s *LocatorTestSuite) TestDiscoveredList() {
	s.meta.SetServices("http://10.0.0.1:8080/", "http://10.0.0.2:8080", "http://10.0.0.1:8080")
	l := s.newLocator(true)
	s.Equal([]string{"http://10.0.0.1:8080", "http://10.0.0.2:8080"}, l.Candidates(context.Background()))
	s.Equal("http://10.0.0.1:8080", l.Current(context.Background()))
}

func (s *LocatorTestSuite) TestEmptyDiscoveryFallsBack() {
	l := s.newLocator(true)
	s.Equal(s.meta.URL, l.Current(context.Background()))
}

func (s *LocatorTestSuite) TestFailoverRotates() {
	ctx := context.Background()
	s.meta.SetServices("http://a", "http://b", "http://c")
	l := s.newLocator(true)

	s.Equal("http://a", l.Current(ctx))
	s.Equal("http://b", l.Failover(ctx, "http://a"))
	s.Equal("http://b", l.Current(ctx))
	s.Equal("http://c", l.Failover(ctx, "http://b"))
	s.Equal("http://a", l.Failover(ctx, "http://c"))
}

func (s *LocatorTestSuite) TestFailoverSingleCandidateStays() {
	l := s.newLocator(false)
	s.Equal(s.meta.URL, l.Failover(context.Background(), s.meta.URL))
}

func (s *LocatorTestSuite) TestListIsCached() {
	ctx := context.Background()
	s.meta.SetServices("http://a")
	l := s.newLocator(true)
	s.Equal("http://a", l.Current(ctx))

	s.meta.SetServices("http://b")
	s.Equal("http://a", l.Current(ctx))

	l.Invalidate()
	s.Equal("http://b", l.Current(ctx))
}
