package index

// Stop-word sets are a closed set per language; en/es/fr/de are supported,
// en is the fallback for any other (or unset) language tag. The lists are
// the usual short, high-frequency function-word sets used by lightweight
// indexers of this shape — no original-language source was available in
// this module's reference material to copy an exact list from.
var stopWords = map[string]map[string]struct{}{
	"en": set("a", "an", "the", "and", "or", "but", "if", "then", "else", "for",
		"of", "to", "in", "on", "at", "by", "with", "from", "as", "is", "are",
		"was", "were", "be", "been", "being", "it", "its", "this", "that",
		"these", "those", "you", "your", "i", "me", "my", "we", "our", "they",
		"them", "their", "he", "she", "his", "her", "not", "no", "so", "do",
		"does", "did", "have", "has", "had", "will", "would", "can", "could",
		"shall", "should", "may", "might", "must", "about", "into", "over",
		"than", "too", "very", "just", "only", "also"),
	"es": set("el", "la", "los", "las", "un", "una", "unos", "unas", "y", "o",
		"pero", "si", "de", "del", "en", "a", "por", "con", "para", "como",
		"es", "son", "fue", "eran", "ser", "estar", "esto", "eso", "estos",
		"esos", "tu", "su", "mi", "nosotros", "ellos", "ella", "el", "no",
		"que", "se", "lo", "le", "les", "ya", "muy", "tambien", "solo"),
	"fr": set("le", "la", "les", "un", "une", "des", "et", "ou", "mais", "si",
		"de", "du", "en", "a", "par", "avec", "pour", "comme", "est", "sont",
		"etait", "etaient", "etre", "ceci", "cela", "ces", "ton", "son", "ma",
		"nous", "ils", "elle", "ne", "pas", "que", "se", "le", "deja", "tres",
		"aussi", "seulement"),
	"de": set("der", "die", "das", "ein", "eine", "einer", "eines", "und",
		"oder", "aber", "wenn", "von", "in", "auf", "bei", "mit", "fuer",
		"als", "ist", "sind", "war", "waren", "sein", "dies", "das", "diese",
		"jene", "du", "dein", "mein", "wir", "unser", "sie", "ihr", "nicht",
		"kein", "dass", "sich", "schon", "sehr", "auch", "nur"),
}

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// stopWordsFor returns the stop-word set for lang, falling back to English
// for an unrecognized or empty tag.
func stopWordsFor(lang string) map[string]struct{} {
	if sw, ok := stopWords[lang]; ok {
		return sw
	}
	return stopWords["en"]
}
