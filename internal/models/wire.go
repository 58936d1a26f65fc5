package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// flexID decodes an integer identifier sent either as a JSON number or as a
// numeric string. Blank strings and null decode to zero.
type flexID int64

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("models: id %q is not an integer", s)
		}
		*f = flexID(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("models: id %s is not an integer", n)
	}
	*f = flexID(v)
	return nil
}

// flexString decodes a document/reference sent either as a string or a number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// ref is the nested object-reference shape, e.g. {"id": 5} or
// {"documento": "C1", "nombres": "Ana"}.
type ref struct {
	ID        flexID     `json:"id"`
	Document  flexString `json:"documento"`
	Name      string     `json:"nombre"`
	FirstName string     `json:"nombres"`
	LastName  string     `json:"apellidos"`
}

func (r *ref) displayName() string {
	if r == nil {
		return ""
	}
	if r.Name != "" {
		return r.Name
	}
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// roleList decodes ["ROLE_X", ...] as well as [{"nombre": "ROLE_X"}, ...].
type roleList []string

func (r *roleList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// a single role string is tolerated too
		var single string
		if err2 := json.Unmarshal(data, &single); err2 == nil {
			*r = roleList{single}
			return nil
		}
		return err
	}
	out := make(roleList, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			Nombre    string `json:"nombre"`
			Name      string `json:"name"`
			Authority string `json:"authority"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return fmt.Errorf("models: unsupported role entry %s", string(item))
		}
		switch {
		case obj.Nombre != "":
			out = append(out, obj.Nombre)
		case obj.Name != "":
			out = append(out, obj.Name)
		case obj.Authority != "":
			out = append(out, obj.Authority)
		}
	}
	*r = out
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstNonZero(values ...int64) int64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
