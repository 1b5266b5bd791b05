package topics

// Merge combines trend and news records into one ordered list of unique topics.
//
// Trend records are absorbed first and only deduplicated on exact key. News
// records are dropped on an exact key match or when Similar to any key seen so
// far. Records with an empty key are always dropped. Inputs are not modified.
func Merge(trend, news []TopicRecord) []TopicRecord {
	out := make([]TopicRecord, 0, len(trend)+len(news))
	seen := make(map[string]struct{}, len(trend)+len(news))
	order := make([]string, 0, len(trend)+len(news))

	for _, rec := range trend {
		key := Key(rec.Text)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		order = append(order, key)
		out = append(out, rec)
	}

	for _, rec := range news {
		key := Key(rec.Text)
		if key == "" || isDuplicate(key, seen, order) {
			continue
		}
		seen[key] = struct{}{}
		order = append(order, key)
		out = append(out, rec)
	}

	return out
}

func isDuplicate(key string, seen map[string]struct{}, order []string) bool {
	if _, ok := seen[key]; ok {
		return true
	}
	for _, s := range order {
		if Similar(key, s) {
			return true
		}
	}
	return false
}
