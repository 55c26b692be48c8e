package endpoint

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Protocol identifies the proxy protocol encoded in a descriptor string.
type Protocol string

const (
	ProtocolVMess       Protocol = "vmess"
	ProtocolVLESS       Protocol = "vless"
	ProtocolTrojan      Protocol = "trojan"
	ProtocolShadowsocks Protocol = "ss"
	ProtocolSSR         Protocol = "ssr"
	ProtocolUnknown     Protocol = "unknown"
)

// schemes lists the recognized descriptor prefixes. ssr must come before ss
// so the longer prefix wins.
var schemes = []Protocol{
	ProtocolVMess,
	ProtocolVLESS,
	ProtocolTrojan,
	ProtocolSSR,
	ProtocolShadowsocks,
}

const (
	// DefaultPort is assumed when a descriptor carries no port.
	DefaultPort = 443
	// UnknownAddress marks a descriptor whose host could not be recovered.
	UnknownAddress = "unknown"
	// PlaceholderName is used when no display name can be extracted.
	PlaceholderName = "Unnamed Config"
)

// Record is one proxy endpoint parsed out of a subscription feed.
// ConfigString is the identity: merging test history across re-fetches
// matches on the exact raw descriptor, never on semantic equality.
type Record struct {
	ConfigString string   `json:"config_string"`
	Protocol     Protocol `json:"protocol"`
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Port         int      `json:"port"`

	LastTestTime int64    `json:"last_test_time"`
	LastLatency  int      `json:"last_latency"` // ms, -1 = untested
	SuccessCount int      `json:"success_count"`
	FailureCount int      `json:"failure_count"`
	Tags         []string `json:"tags"`
}

// Parse turns one descriptor string into a Record. It is total: adversarial
// or garbled input degrades to unknown fields instead of failing, because
// one bad line must never abort parsing of an entire subscription.
func Parse(raw string) *Record {
	raw = strings.TrimSpace(raw)

	r := &Record{
		ConfigString: raw,
		Protocol:     DetectProtocol(raw),
		Address:      UnknownAddress,
		Port:         DefaultPort,
		LastLatency:  -1,
	}

	rest := raw
	if i := strings.Index(raw, "://"); i >= 0 {
		rest = raw[i+3:]
	}

	r.Name = extractName(raw)
	r.Address, r.Port = extractHostPort(rest)

	// Legacy vmess descriptors carry a base64 JSON body instead of a
	// host:port authority.
	if r.Protocol == ProtocolVMess && r.Address == UnknownAddress {
		if v, ok := decodeVMessJSON(rest); ok {
			if v.Add != "" {
				r.Address = v.Add
			}
			if p, err := strconv.Atoi(fmt.Sprintf("%v", v.Port)); err == nil && p > 0 {
				r.Port = p
			}
			if r.Name == PlaceholderName && v.Ps != "" {
				r.Name = v.Ps
			}
		}
	}

	return r
}

// DetectProtocol matches the descriptor's scheme prefix case-insensitively
// against the recognized set. Unmatched input yields ProtocolUnknown.
func DetectProtocol(raw string) Protocol {
	lower := strings.ToLower(raw)
	for _, s := range schemes {
		if strings.HasPrefix(lower, string(s)+"://") {
			return s
		}
	}
	return ProtocolUnknown
}

// Recognized reports whether the line starts with one of the accepted
// scheme prefixes. Subscription parsing drops everything else.
func Recognized(line string) bool {
	return DetectProtocol(line) != ProtocolUnknown
}

func extractName(raw string) string {
	// 1. URL fragment, percent-decoded.
	if i := strings.Index(raw, "#"); i >= 0 && i+1 < len(raw) {
		frag := raw[i+1:]
		if dec, err := url.QueryUnescape(frag); err == nil && dec != "" {
			return dec
		}
		if frag != "" {
			return frag
		}
	}

	// 2. remark/remarks query parameter, base64 if it decodes.
	if v := queryParam(raw, "remark"); v != "" {
		return decodeRemark(v)
	}
	if v := queryParam(raw, "remarks"); v != "" {
		return decodeRemark(v)
	}

	return PlaceholderName
}

func decodeRemark(v string) string {
	if dec, err := DecodeBase64(v); err == nil && dec != "" {
		return dec
	}
	return v
}

// queryParam scans the raw descriptor for key=value without requiring the
// whole string to be a well-formed URL.
func queryParam(raw, key string) string {
	qi := strings.Index(raw, "?")
	if qi < 0 {
		return ""
	}
	query := raw[qi+1:]
	if hi := strings.Index(query, "#"); hi >= 0 {
		query = query[:hi]
	}
	for _, pair := range strings.Split(query, "&") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 && kv[0] == key {
			return kv[1]
		}
	}
	return ""
}

// extractHostPort strips credentials, path, query and fragment from the
// part after the scheme and splits the remaining authority.
func extractHostPort(rest string) (string, int) {
	if rest == "" {
		return UnknownAddress, DefaultPort
	}

	// Credentials segment before '@' (the last '@' wins: passwords may
	// contain '@' themselves).
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		rest = rest[i+1:]
	}

	// Path, query, fragment.
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return UnknownAddress, DefaultPort
	}

	host := rest
	port := DefaultPort

	if strings.HasPrefix(rest, "[") {
		// Bracketed IPv6 literal.
		end := strings.Index(rest, "]")
		if end < 0 {
			return UnknownAddress, DefaultPort
		}
		host = rest[1:end]
		if len(rest) > end+1 && rest[end+1] == ':' {
			if p, err := strconv.Atoi(rest[end+2:]); err == nil && p > 0 && p <= 65535 {
				port = p
			}
		}
	} else if i := strings.LastIndex(rest, ":"); i >= 0 && allDigits(rest[i+1:]) {
		// A trailing all-digit segment is a port field even when out of
		// range; an invalid port falls back to the default.
		host = rest[:i]
		if p, err := strconv.Atoi(rest[i+1:]); err == nil && p > 0 && p <= 65535 {
			port = p
		}
	}

	if host == "" || !plausibleHost(host) {
		return UnknownAddress, DefaultPort
	}
	return host, port
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// plausibleHost rejects authority segments that are clearly not a host,
// e.g. the raw base64 blob of a legacy vmess descriptor.
func plausibleHost(host string) bool {
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == '_' || r == ':':
		default:
			return false
		}
	}
	if strings.ContainsAny(host, ".:") {
		return true
	}
	// A long dotless token is almost certainly an encoded payload.
	return len(host) < 32
}

type vmessJSON struct {
	Ps   string      `json:"ps"`
	Add  string      `json:"add"`
	Port interface{} `json:"port"`
}

func decodeVMessJSON(body string) (*vmessJSON, bool) {
	// The body may still carry a fragment or query suffix.
	if i := strings.IndexAny(body, "?#"); i >= 0 {
		body = body[:i]
	}
	dec, err := DecodeBase64(body)
	if err != nil {
		return nil, false
	}
	var v vmessJSON
	if err := json.Unmarshal([]byte(dec), &v); err != nil {
		return nil, false
	}
	return &v, true
}

// DecodeBase64 attempts to decode standard and URL-safe base64 strings,
// automatically fixing missing padding.
func DecodeBase64(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("empty input")
	}
	if n := len(s) % 4; n != 0 {
		s += strings.Repeat("=", 4-n)
	}

	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return string(b), nil
	}
	b, err := base64.URLEncoding.DecodeString(s)
	if err == nil {
		return string(b), nil
	}
	return "", err
}
