package wire

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestreldns/kestrel-dns/internal/dns/domain"
)

func TestUdpCodec_EncodeQuery(t *testing.T) {
	codec := NewUDPCodec()

	q, err := domain.NewQuestion(12345, "example.com.", domain.RRTypeA, domain.RRClassIN)
	require.NoError(t, err)
	q = q.SetRD(true)

	data, err := codec.EncodeQuery(q)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), 12)

	assert.Equal(t, uint16(12345), binary.BigEndian.Uint16(data[0:2]))
	assert.Equal(t, uint16(1), binary.BigEndian.Uint16(data[4:6])) // QDCOUNT
	assert.Equal(t, uint16(0), binary.BigEndian.Uint16(data[6:8]))
	assert.True(t, domain.GetFlag(binary.BigEndian.Uint16(data[2:4]), bitRD, 1) == 1)
}

func TestUdpCodec_EncodeQuery_LabelTooLong(t *testing.T) {
	codec := NewUDPCodec()
	q := domain.Question{ID: 1, Name: string(make([]byte, 64)) + ".com.", Type: domain.RRTypeA, Class: domain.RRClassIN}
	_, err := codec.EncodeQuery(q)
	assert.Error(t, err)
}

func TestUdpCodec_DecodeQuery_RoundTrip(t *testing.T) {
	codec := NewUDPCodec()
	q, err := domain.NewQuestion(4242, "www.example.com.", domain.RRTypeAAAA, domain.RRClassIN)
	require.NoError(t, err)
	q = q.SetRD(true)

	data, err := codec.EncodeQuery(q)
	require.NoError(t, err)

	decoded, err := codec.DecodeQuery(data)
	require.NoError(t, err)
	assert.Equal(t, q.ID, decoded.ID)
	assert.Equal(t, q.Name, decoded.Name)
	assert.Equal(t, q.Type, decoded.Type)
	assert.Equal(t, q.Class, decoded.Class)
	assert.True(t, decoded.RD())
}

func TestUdpCodec_DecodeQuery_TooShort(t *testing.T) {
	codec := NewUDPCodec()
	_, err := codec.DecodeQuery([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestUdpCodec_DecodeQuery_ZeroQDCount(t *testing.T) {
	codec := NewUDPCodec()
	data := make([]byte, 12)
	binary.BigEndian.PutUint16(data[4:6], 0)
	_, err := codec.DecodeQuery(data)
	assert.Error(t, err)
}

func TestUdpCodec_EncodeResponse_DecodeResponse_RoundTrip(t *testing.T) {
	codec := NewUDPCodec()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	q, err := domain.NewQuestion(99, "example.com.", domain.RRTypeA, domain.RRClassIN)
	require.NoError(t, err)

	rr, err := domain.NewCachedResourceRecord("example.com.", domain.RRTypeA, domain.RRClassIN, 300, []byte{192, 0, 2, 1}, now)
	require.NoError(t, err)

	resp := domain.NewResponse(q, domain.RCode(domain.NoError), []domain.ResourceRecord{rr})

	data, err := codec.EncodeResponse(resp)
	require.NoError(t, err)

	decoded, err := codec.DecodeResponse(data, resp.ID, now)
	require.NoError(t, err)
	assert.Equal(t, resp.ID, decoded.ID)
	assert.Equal(t, resp.RCode, decoded.RCode)
	require.Len(t, decoded.Answers, 1)
	assert.Equal(t, rr.Name, decoded.Answers[0].Name)
	assert.Equal(t, rr.Type, decoded.Answers[0].Type)
	assert.Equal(t, rr.Data, decoded.Answers[0].Data)
}

func TestUdpCodec_EncodeResponse_NSGoesToAuthority(t *testing.T) {
	codec := NewUDPCodec()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	q, err := domain.NewQuestion(7, "example.com.", domain.RRTypeNS, domain.RRClassIN)
	require.NoError(t, err)

	nsData, err := domain.NewAuthoritativeResourceRecord("example.com.", domain.RRTypeNS, domain.RRClassIN, 3600, []byte{2, 'n', 's', 0})
	require.NoError(t, err)

	resp := domain.NewResponse(q, domain.RCode(domain.NoError), []domain.ResourceRecord{nsData})
	assert.Empty(t, resp.Answers)
	require.Len(t, resp.Authority, 1)

	data, err := codec.EncodeResponse(resp)
	require.NoError(t, err)

	decoded, err := codec.DecodeResponse(data, resp.ID, now)
	require.NoError(t, err)
	assert.Empty(t, decoded.Answers)
	require.Len(t, decoded.Authority, 1)
}

func TestUdpCodec_EncodeResponse_ErrorDropsSections(t *testing.T) {
	codec := NewUDPCodec()
	q, err := domain.NewQuestion(1, "example.com.", domain.RRTypeA, domain.RRClassIN)
	require.NoError(t, err)

	resp := domain.NewResponse(q, domain.RCode(domain.NXDomain), nil)
	assert.Empty(t, resp.Answers)
	assert.Empty(t, resp.Authority)

	data, err := codec.EncodeResponse(resp)
	require.NoError(t, err)

	decoded, err := codec.DecodeResponse(data, resp.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.RCode(domain.NXDomain), decoded.RCode)
	assert.Empty(t, decoded.Answers)
}

func TestUdpCodec_DecodeResponse_IDMismatch(t *testing.T) {
	codec := NewUDPCodec()
	data := make([]byte, 12)
	binary.BigEndian.PutUint16(data[0:2], 5)
	_, err := codec.DecodeResponse(data, 6, time.Now())
	assert.Error(t, err)
}

func TestUdpCodec_DecodeResponse_TooShort(t *testing.T) {
	codec := NewUDPCodec()
	_, err := codec.DecodeResponse([]byte{0, 1}, 1, time.Now())
	assert.Error(t, err)
}

// Label round-trip through decodeName for a simple uncompressed name.
func TestDecodeName_SimpleRoundTrip(t *testing.T) {
	encoded := []byte{3, 'f', 'o', 'o', 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0}
	name, offset, err := decodeName(encoded, 0)
	require.NoError(t, err)
	assert.Equal(t, "foo.example.com.", name)
	assert.Equal(t, len(encoded), offset)
}

func TestDecodeName_RootName(t *testing.T) {
	encoded := []byte{0}
	name, offset, err := decodeName(encoded, 0)
	require.NoError(t, err)
	assert.Equal(t, "", name)
	assert.Equal(t, 1, offset)
}

// A compressed occurrence of a name decodes identically to the uncompressed form.
func TestDecodeName_CompressionPointer(t *testing.T) {
	// Packet: [0:17) = "foo.example.com." at offset 0, then a pointer back to offset 0.
	packet := []byte{3, 'f', 'o', 'o', 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0}
	pointerOffset := len(packet)
	packet = append(packet, 0xC0, 0x00)

	name, offset, err := decodeName(packet, pointerOffset)
	require.NoError(t, err)
	assert.Equal(t, "foo.example.com.", name)
	assert.Equal(t, pointerOffset+2, offset)
}

func TestDecodeName_PointerMustPointBackward(t *testing.T) {
	packet := []byte{0xC0, 0x02, 0, 0}
	_, _, err := decodeName(packet, 0)
	assert.Error(t, err)
}

func TestDecodeName_PointerCycleRejected(t *testing.T) {
	// Two pointers that point at each other.
	packet := make([]byte, 4)
	packet[0], packet[1] = 0xC0, 0x02
	packet[2], packet[3] = 0xC0, 0x00
	_, _, err := decodeName(packet, 2)
	assert.Error(t, err)
}

func TestDecodeName_LabelLengthExceedsBuffer(t *testing.T) {
	packet := []byte{10, 'a', 'b'}
	_, _, err := decodeName(packet, 0)
	assert.Error(t, err)
}

func TestDecodeName_ReservedLengthBits(t *testing.T) {
	packet := []byte{0x80, 'a'}
	_, _, err := decodeName(packet, 0)
	assert.Error(t, err)
}

// decode(encode(x)) reproduces the same semantic Packet (modulo NS/non-NS split).
func TestUdpCodec_PacketRoundTrip(t *testing.T) {
	codec := NewUDPCodec()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	q, err := domain.NewQuestion(555, "svc.internal.", domain.RRTypeA, domain.RRClassIN)
	require.NoError(t, err)
	q = q.SetRD(true)

	encodedQuery, err := codec.EncodeQuery(q)
	require.NoError(t, err)
	decodedQuery, err := codec.DecodeQuery(encodedQuery)
	require.NoError(t, err)
	require.Equal(t, q, decodedQuery)

	rr, err := domain.NewCachedResourceRecord("svc.internal.", domain.RRTypeA, domain.RRClassIN, 60, []byte{10, 0, 0, 1}, now)
	require.NoError(t, err)
	resp := domain.NewResponse(decodedQuery, domain.RCode(domain.NoError), []domain.ResourceRecord{rr})

	encodedResp, err := codec.EncodeResponse(resp)
	require.NoError(t, err)
	decodedResp, err := codec.DecodeResponse(encodedResp, resp.ID, now)
	require.NoError(t, err)

	require.Len(t, decodedResp.Answers, 1)
	assert.Equal(t, rr.Data, decodedResp.Answers[0].Data)
	assert.Equal(t, rr.Name, decodedResp.Answers[0].Name)
}
