package optimizer

import "github.com/itskum47/mailforge/internal/index"

func decodeAndTrim(raw string) (*index.Meta, error) {
	meta, err := index.DecodeMeta(raw)
	if err != nil {
		return nil, err
	}
	trimmed := make(map[string]any, len(meta.Metadata))
	for k, v := range meta.Metadata {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && len(s) > maxMetaLen {
			trimmed[k] = s[:maxMetaLen] + "..."
			continue
		}
		trimmed[k] = v
	}
	meta.Metadata = trimmed
	return meta, nil
}

func encode(meta *index.Meta) (string, error) {
	return index.EncodeMeta(meta)
}
