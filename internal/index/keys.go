package index

import "fmt"

func docKey(docType string) string  { return "doc:" + docType }
func metaKey(docType string) string { return "meta:" + docType }
func postingKey(term string) string { return "posting:" + term }

// lockName matches spec §4.6's literal "lock:doc:{id}" naming (the Lock
// Manager itself prepends "lock:").
func lockName(id string) string { return fmt.Sprintf("doc:%s", id) }

// member builds the posting-list member format "type:id" (spec §3's
// inverted index data model).
func member(docType, id string) string {
	return docType + ":" + id
}
