package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/KasunDA/fc-admin/internal/profile"
)

// formValues holds request fields from either a JSON object or an
// url-encoded form, normalized to string lists.
type formValues map[string][]string

// readForm accepts a JSON object body or a url-encoded form. JSON strings
// become one-element lists, arrays become lists and numbers and booleans
// are formatted.
func readForm(r *http.Request) (formValues, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "application/json" {
		r.Body = http.MaxBytesReader(nil, r.Body, maxBodySize)
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return formValues(r.PostForm), nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	out := make(formValues, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				out[k] = append(out[k], scalar(item))
			}
		case nil:
		default:
			out[k] = []string{scalar(t)}
		}
	}
	return out, nil
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// first returns the first non-blank value among keys.
func (f formValues) first(keys ...string) string {
	for _, k := range keys {
		for _, v := range f[k] {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// members splits every value of key on commas.
func (f formValues) members(key string) []string {
	var out []string
	for _, v := range f[key] {
		out = append(out, profile.SplitMembers(v)...)
	}
	return out
}

func (f formValues) metadata() (profile.Metadata, error) {
	md := profile.Metadata{
		Name:        f.first("profile-name", "name"),
		Description: f.first("profile-desc", "description"),
		Users:       f.members("users"),
		Groups:      f.members("groups"),
		Hosts:       f.members("hosts"),
		Hostgroups:  f.members("hostgroups"),
	}
	if p := f.first("priority"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return md, fmt.Errorf("%w: priority %q is not a number", profile.ErrInvalidMetadata, p)
		}
		md.Priority = n
	}
	return md, nil
}

// parseSelection reads {"sel": [...]} for the primary namespace or
// {"sel": {namespace: [...]}}. Indices may be numbers or numeric strings.
func parseSelection(body []byte, primary string) (map[string][]int, error) {
	var req struct {
		Sel json.RawMessage `json:"sel"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	if len(req.Sel) == 0 || string(req.Sel) == "null" {
		return nil, errors.New("missing sel")
	}

	var list []json.RawMessage
	if err := json.Unmarshal(req.Sel, &list); err == nil {
		idx, err := parseIndices(list)
		if err != nil {
			return nil, err
		}
		return map[string][]int{primary: idx}, nil
	}

	var byNS map[string][]json.RawMessage
	if err := json.Unmarshal(req.Sel, &byNS); err != nil {
		return nil, errors.New("sel must be a list or an object of lists")
	}
	out := make(map[string][]int, len(byNS))
	for ns, items := range byNS {
		idx, err := parseIndices(items)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ns, err)
		}
		out[ns] = idx
	}
	return out, nil
}

func parseIndices(items []json.RawMessage) ([]int, error) {
	out := make([]int, 0, len(items))
	for _, raw := range items {
		var n int
		if err := json.Unmarshal(raw, &n); err == nil {
			out = append(out, n)
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("bad index %s", raw)
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("bad index %q", s)
		}
		out = append(out, n)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeStatus answers with the {"status": ...} body older clients expect.
func writeStatus(w http.ResponseWriter, code int, status string) {
	writeJSON(w, code, map[string]string{"status": status})
}
