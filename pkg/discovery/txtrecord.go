package discovery

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodePeerTXT creates TXT records for a listening peer.
func EncodePeerTXT(info *PeerInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	txt[TXTKeyAddress] = strings.ToUpper(info.Address)
	txt[TXTKeyService] = info.ServiceID.String()

	if info.Name != "" {
		txt[TXTKeyName] = info.Name
	}

	return txt
}

// DecodePeerTXT parses TXT records of a listening peer.
func DecodePeerTXT(txt TXTRecordMap) (*PeerInfo, error) {
	info := &PeerInfo{}

	addr, ok := txt[TXTKeyAddress]
	if !ok || addr == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyAddress)
	}
	if !isAddress(addr) {
		return nil, fmt.Errorf("%w: invalid address %q", ErrInvalidTXTRecord, addr)
	}
	info.Address = strings.ToUpper(addr)

	svc, ok := txt[TXTKeyService]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyService)
	}
	id, err := uuid.Parse(svc)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid service id: %v", ErrInvalidTXTRecord, err)
	}
	info.ServiceID = id

	info.Name = txt[TXTKeyName]

	return info, nil
}

// InstanceName derives the mDNS instance name for a peer address.
func InstanceName(address string) string {
	return InstancePrefix + strings.ToUpper(strings.NewReplacer(":", "", "-", "").Replace(address))
}

// isAddress reports whether s looks like XX:XX:XX:XX:XX:XX.
func isAddress(s string) bool {
	if len(s) != 17 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if i%3 == 2 {
			if c != ':' {
				return false
			}
			continue
		}
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// TXTRecordsToStrings converts a TXTRecordMap to a sorted slice of "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
