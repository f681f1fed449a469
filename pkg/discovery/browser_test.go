package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource replays entries and then waits for cancellation.
func fakeSource(entries ...*ServiceEntry) entrySource {
	return func(ctx context.Context, out chan<- *ServiceEntry) error {
		for _, e := range entries {
			select {
			case out <- e:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		<-ctx.Done()
		return nil
	}
}

func peerEntry(instance, addr string, svc uuid.UUID, ips ...string) *ServiceEntry {
	return &ServiceEntry{
		Instance: instance,
		Service:  ServiceType,
		Domain:   Domain,
		Host:     instance + ".local",
		Port:     5000,
		Text:     []string{"addr=" + addr, "svc=" + svc.String()},
		Addrs:    ips,
	}
}

func TestServiceEntryToPeerService(t *testing.T) {
	svc, err := peerEntry("nfcho-112233445566", "11:22:33:44:55:66", testServiceID, "10.0.0.5").ToPeerService()
	require.NoError(t, err)
	assert.Equal(t, "11:22:33:44:55:66", svc.Address)
	assert.Equal(t, uint16(5000), svc.Port)
	assert.True(t, svc.Matches("11:22:33:44:55:66", testServiceID))
	assert.False(t, svc.Matches("11:22:33:44:55:66", uuid.New()))

	bad := &ServiceEntry{Instance: "x", Text: []string{"svc=" + testServiceID.String()}}
	_, err = bad.ToPeerService()
	assert.Error(t, err)
}

func TestBrowseAggregatesAndSkipsInvalid(t *testing.T) {
	b := NewMDNSBrowser(BrowserConfig{})
	b.source = fakeSource(
		&ServiceEntry{Instance: "garbage", Text: []string{"x=y"}},
		peerEntry("nfcho-A", "AA:AA:AA:AA:AA:AA", testServiceID, "10.0.0.1"),
		peerEntry("nfcho-A", "AA:AA:AA:AA:AA:AA", testServiceID, "10.0.0.1", "fe80::1"),
		peerEntry("nfcho-B", "BB:BB:BB:BB:BB:BB", testServiceID, "10.0.0.2"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	results, err := b.Browse(ctx)
	require.NoError(t, err)

	first := <-results
	second := <-results
	assert.Equal(t, "nfcho-A", first.InstanceName)
	assert.Equal(t, "nfcho-B", second.InstanceName)

	b.Stop()
	for range results {
	}
}

func TestResolve(t *testing.T) {
	other := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	t.Run("Found", func(t *testing.T) {
		b := NewMDNSBrowser(BrowserConfig{})
		b.source = fakeSource(
			peerEntry("nfcho-A", "AA:AA:AA:AA:AA:AA", other, "10.0.0.1"),
			peerEntry("nfcho-B", "BB:BB:BB:BB:BB:BB", testServiceID, "10.0.0.2"),
		)

		svc, err := b.Resolve(context.Background(), "bb:bb:bb:bb:bb:bb", testServiceID)
		require.NoError(t, err)
		ep, err := svc.Endpoint()
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.2:5000", ep)
	})

	t.Run("Timeout", func(t *testing.T) {
		b := NewMDNSBrowser(BrowserConfig{})
		b.source = fakeSource(peerEntry("nfcho-A", "AA:AA:AA:AA:AA:AA", other))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := b.Resolve(ctx, "AA:AA:AA:AA:AA:AA", testServiceID)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver()
	r.Add("aa:bb:cc:dd:ee:ff", testServiceID, "127.0.0.1", 7000)

	svc, err := r.Resolve(context.Background(), "AA:BB:CC:DD:EE:FF", testServiceID)
	require.NoError(t, err)
	ep, err := svc.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", ep)

	_, err = r.Resolve(context.Background(), "AA:BB:CC:DD:EE:FF", uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	r.Remove("AA:BB:CC:DD:EE:FF")
	_, err = r.Resolve(context.Background(), "AA:BB:CC:DD:EE:FF", testServiceID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdvertiseRejectsMissingPort(t *testing.T) {
	a := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	err := a.Advertise(context.Background(), &PeerInfo{Address: "AA:BB:CC:DD:EE:FF", ServiceID: testServiceID})
	assert.ErrorIs(t, err, ErrMissingRequired)
	assert.ErrorIs(t, a.StopAdvertising("AA:BB:CC:DD:EE:FF"), ErrNotFound)
	a.StopAll()
}

func TestChainResolver(t *testing.T) {
	first := NewStaticResolver()
	second := NewStaticResolver()
	second.Add("AA:BB:CC:DD:EE:FF", testServiceID, "10.0.0.2", 7000)
	first.Add("11:22:33:44:55:66", testServiceID, "10.0.0.1", 7000)

	chain := ChainResolver{first, second}

	svc, err := chain.Resolve(context.Background(), "AA:BB:CC:DD:EE:FF", testServiceID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", svc.Host)

	svc, err = chain.Resolve(context.Background(), "11:22:33:44:55:66", testServiceID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", svc.Host)

	_, err = chain.Resolve(context.Background(), "00:00:00:00:00:01", testServiceID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = ChainResolver(nil).Resolve(context.Background(), "00:00:00:00:00:01", testServiceID)
	assert.ErrorIs(t, err, ErrNotFound)
}
