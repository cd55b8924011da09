package fingerprint

import "sort"

// entityFields are the field names whose presence marks a value as a
// direct entity rather than an id reference into a sibling map (spec.md
// §4.1 "Normalisation").
var entityFields = []string{"name", "game", "competition", "market", "event"}

// Unwrap peels the upstream payload's outer wrapper. The wire format may
// nest the real document once or twice under a "data" key; this function
// deterministically removes up to two such layers.
func Unwrap(payload map[string]any) map[string]any {
	cur := payload
	for i := 0; i < 2; i++ {
		inner, ok := cur["data"].(map[string]any)
		if !ok {
			break
		}
		cur = inner
	}
	return cur
}

func isEntity(v map[string]any) bool {
	for _, f := range entityFields {
		if _, ok := v[f]; ok {
			return true
		}
	}
	return false
}

// resolveRef resolves a reference value that may be a direct entity map, an
// id string/number to look up in siblings, or (failing both) the key under
// which it was found.
func resolveRef(value any, key string, siblings map[string]any) (map[string]any, bool) {
	if m, ok := value.(map[string]any); ok && isEntity(m) {
		return m, true
	}

	var id string
	switch v := value.(type) {
	case string:
		id = v
	case float64:
		id = formatNumericKey(v)
	}
	if id != "" {
		if m, ok := siblings[id].(map[string]any); ok {
			return m, true
		}
	}
	if m, ok := siblings[key].(map[string]any); ok {
		return m, true
	}
	return nil, false
}

func formatNumericKey(f float64) string {
	if f == float64(int64(f)) {
		return itoa(int64(f))
	}
	return ""
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ExtractGames extracts the list of games from a normalised document using
// the three strategies named in spec.md §4.1:
//
//	(a) walk sport -> region -> competition -> game with id-reference
//	    resolution across sibling maps;
//	(b) a flat mapping keyed by game id;
//	(c) a bare sequence of games.
func ExtractGames(doc map[string]any) []map[string]any {
	if games := extractHierarchy(doc); len(games) > 0 {
		return games
	}
	if games := extractFlatMap(doc); len(games) > 0 {
		return games
	}
	return extractSequence(doc)
}

func extractHierarchy(doc map[string]any) []map[string]any {
	sports, ok := doc["sports"]
	if !ok {
		return nil
	}
	siblings, _ := doc["regions"].(map[string]any)
	competitionSiblings, _ := doc["competitions"].(map[string]any)
	gameSiblings, _ := doc["games"].(map[string]any)

	var out []map[string]any
	walkRefList(sports, "regions", siblings, func(region map[string]any) {
		walkRefList(region["competitions"], "competitions", competitionSiblings, func(comp map[string]any) {
			walkRefList(comp["games"], "games", gameSiblings, func(game map[string]any) {
				out = append(out, game)
			})
		})
	})
	return out
}

// walkRefList iterates a value that may be a slice of refs or a map of
// refs, resolving each against siblings and invoking fn on the resolved
// entity map.
func walkRefList(v any, key string, siblings map[string]any, fn func(map[string]any)) {
	switch list := v.(type) {
	case []any:
		for _, item := range list {
			if m, ok := resolveRef(item, key, siblings); ok {
				fn(m)
			}
		}
	case map[string]any:
		for k, item := range list {
			if m, ok := resolveRef(item, k, siblings); ok {
				fn(m)
			} else if ok2, entity := asEntity(item); ok2 {
				fn(entity)
			}
		}
	}
}

func asEntity(v any) (bool, map[string]any) {
	if m, ok := v.(map[string]any); ok {
		return true, m
	}
	return false, nil
}

func extractFlatMap(doc map[string]any) []map[string]any {
	gamesField, ok := doc["games"].(map[string]any)
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(gamesField))
	for k := range gamesField {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		if m, ok := gamesField[id].(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func extractSequence(doc map[string]any) []map[string]any {
	seq, ok := doc["games"].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(seq))
	for _, v := range seq {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
