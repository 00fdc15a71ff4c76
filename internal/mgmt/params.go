package mgmt

import (
	"strconv"
	"strings"

	"github.com/gorilla/schema"

	"github.com/ccnhub/ccnd/internal/wire"
)

// decoder is shared across every params struct; gorilla/schema decoders
// are safe for concurrent use once built, and the event loop is
// single-threaded anyway (spec.md s5).
var decoder = schema.NewDecoder()

func init() {
	decoder.IgnoreUnknownKeys(true)
}

// NewFaceParams is the flat parameter set carried by a /ccnx/<id>/newface
// request (spec.md s4.6 "Multicast... per-interface join is driven by
// newface management requests that supply (multicast-address, port,
// interface-address, ttl)").
type NewFaceParams struct {
	Transport string `schema:"transport"` // "udp", "tcp", "mcast"
	Address   string `schema:"address"`
	Port      int    `schema:"port"`
	McastIf   string `schema:"mcast_if"`
	TTL       int    `schema:"ttl"`
}

// PrefixRegParams is the flat parameter set carried by a
// /ccnx/<id>/prefixreg request (spec.md s4.4, s4.7).
type PrefixRegParams struct {
	Prefix string `schema:"prefix"`
	FaceID uint64 `schema:"faceid"`
	Flags  uint32 `schema:"flags"`
}

// decodeParams extracts "key=value" component strings following the
// registered filter's prefix components and decodes them into dst via
// gorilla/schema, generalizing teacher's fw/mgmt/helpers.go
// decodeControlParameters (which decodes a single TLV blob) onto a
// CCNx-style flat component parameter list (spec.md s4.7 "added").
func decodeParams(name wire.Name, prefixLen int, dst any) error {
	values := make(map[string][]string)
	if prefixLen > len(name) {
		prefixLen = len(name)
	}
	for _, c := range name[prefixLen:] {
		kv := strings.SplitN(string(c.Val), "=", 2)
		if len(kv) != 2 {
			continue
		}
		values[kv[0]] = append(values[kv[0]], kv[1])
	}
	return decoder.Decode(dst, values)
}

func encodeParam(key string, val string) wire.Component {
	return wire.NewGenericComponent(key + "=" + val)
}

func encodeParamUint(key string, val uint64) wire.Component {
	return encodeParam(key, strconv.FormatUint(val, 10))
}
