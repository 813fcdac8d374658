package sources

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestreldns/kestrel-dns/internal/dns/common/clock"
	"github.com/kestreldns/kestrel-dns/internal/dns/common/log"
	"github.com/kestreldns/kestrel-dns/internal/dns/domain"
	"github.com/kestreldns/kestrel-dns/internal/dns/gateways/wire"
)

// fakeUpstream answers every query with a single A record, echoing the
// query id, and reports how many packets it actually received.
func fakeUpstream(t *testing.T, rcode domain.RCode) (addr string, hits *int) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)

	codec := wire.NewUDPCodec()
	count := 0
	hits = &count

	go func() {
		buf := make([]byte, 512)
		for {
			n, clientAddr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			*hits++
			q, err := codec.DecodeQuery(buf[:n])
			if err != nil {
				continue
			}
			var records []domain.ResourceRecord
			if rcode == domain.RCode(domain.NoError) {
				rr, _ := domain.NewCachedResourceRecord(q.Name, domain.RRTypeA, domain.RRClassIN, 1800, []byte{9, 9, 9, 9}, time.Now())
				records = []domain.ResourceRecord{rr}
			}
			resp := domain.NewResponse(q, rcode, records)
			out, err := codec.EncodeResponse(resp)
			if err != nil {
				continue
			}
			_, _ = conn.WriteToUDP(out, clientAddr)
		}
	}()

	t.Cleanup(func() { conn.Close() })
	return conn.LocalAddr().String(), hits
}

func TestRecursiveSource_Get_Success(t *testing.T) {
	addr, _ := fakeUpstream(t, domain.RCode(domain.NoError))
	codec := wire.NewUDPCodec()
	src := NewRecursiveSource([]string{addr}, 500*time.Millisecond, 2, codec, clock.RealClock{}, log.NewNoopLogger())

	q, err := domain.NewQuestion(1, "example.com.", domain.RRTypeA, domain.RRClassIN)
	require.NoError(t, err)

	got, err := src.Get(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []byte{9, 9, 9, 9}, got[0].Data)
}

func TestRecursiveSource_Get_UpstreamErrorRCode(t *testing.T) {
	addr, _ := fakeUpstream(t, domain.RCode(domain.ServFail))
	codec := wire.NewUDPCodec()
	src := NewRecursiveSource([]string{addr}, 500*time.Millisecond, 0, codec, clock.RealClock{}, log.NewNoopLogger())

	q, err := domain.NewQuestion(1, "example.com.", domain.RRTypeA, domain.RRClassIN)
	require.NoError(t, err)

	_, err = src.Get(context.Background(), q)
	assert.Error(t, err)
}

func TestRecursiveSource_Get_TimeoutExhaustsRetries(t *testing.T) {
	// Nothing is listening on this port, so every attempt will either
	// error out immediately (connection refused) or time out.
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	unreachable := conn.LocalAddr().String()
	conn.Close()

	codec := wire.NewUDPCodec()
	src := NewRecursiveSource([]string{unreachable}, 100*time.Millisecond, 1, codec, clock.RealClock{}, log.NewNoopLogger())

	q, err := domain.NewQuestion(1, "example.com.", domain.RRTypeA, domain.RRClassIN)
	require.NoError(t, err)

	_, err = src.Get(context.Background(), q)
	assert.Error(t, err)
}

func TestRecursiveSource_nextAppID_Wraps(t *testing.T) {
	src := &RecursiveSource{}
	src.appID.Store(^uint32(0))
	first := src.nextAppID()
	assert.Equal(t, uint16(0), first)
}
