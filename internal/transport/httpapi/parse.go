package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

var (
	errMissingIDs = errors.New("missing source or target chat id")
	errInvalidIDs = errors.New("invalid chat ids")
)

// parseStartBody extracts source and target from a POST /start body.
//
// A field that is absent or null reports errMissingIDs. Every other value
// must be a base-10 int64, as a JSON integer or a whitespace-trimmed
// string, or errInvalidIDs is reported. Zero is a valid id.
func parseStartBody(body []byte) (source, target int64, err error) {
	var fields map[string]json.RawMessage
	if len(bytes.TrimSpace(body)) == 0 || json.Unmarshal(body, &fields) != nil {
		return 0, 0, errMissingIDs
	}
	rawSrc, rawDst := fields["source"], fields["target"]
	if isAbsent(rawSrc) || isAbsent(rawDst) {
		return 0, 0, errMissingIDs
	}
	source, err = parseChatID(rawSrc)
	if err != nil {
		return 0, 0, err
	}
	target, err = parseChatID(rawDst)
	if err != nil {
		return 0, 0, err
	}
	return source, target, nil
}

func isAbsent(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func parseChatID(raw json.RawMessage) (int64, error) {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, errInvalidIDs
		}
		s = strings.TrimSpace(s)
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errInvalidIDs
	}
	return id, nil
}
