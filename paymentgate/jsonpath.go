package paymentgate

import (
	gojson "github.com/coreos/go-json"
	jp "github.com/reclaimprotocol/jsonpathplus-go"
)

// lookup returns the first value matched by expr
func lookup(doc []byte, expr string) (interface{}, bool) {
	results, err := jp.Query(expr, string(doc))
	if err != nil || len(results) == 0 {
		return nil, false
	}
	return results[0].Value, true
}

// exists reports whether expr matches a non-null value
func exists(doc []byte, expr string) bool {
	v, ok := lookup(doc, expr)
	return ok && v != nil
}

// lookupString returns the first match of expr when it is a JSON string
func lookupString(doc []byte, expr string) (string, bool) {
	v, ok := lookup(doc, expr)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// fieldSpan is where a value sits in the raw document
type fieldSpan struct {
	Start int
	End   int // exclusive
	Raw   string
}

// locateField follows object keys from the root of doc and returns the byte
// span of the value found there.
func locateField(doc []byte, keys ...string) (fieldSpan, bool) {
	var root gojson.Node
	if err := gojson.Unmarshal(doc, &root); err != nil {
		return fieldSpan{}, false
	}

	cur := root
	for _, key := range keys {
		obj, ok := cur.Value.(map[string]gojson.Node)
		if !ok {
			return fieldSpan{}, false
		}
		if cur, ok = obj[key]; !ok {
			return fieldSpan{}, false
		}
	}

	// End is inclusive; objects and arrays start after their opening bracket
	start, end := cur.Start, cur.End+1
	switch cur.Value.(type) {
	case map[string]gojson.Node, []gojson.Node:
		start--
	}
	if start < 0 || end > len(doc) || start >= end {
		return fieldSpan{}, false
	}
	return fieldSpan{Start: start, End: end, Raw: string(doc[start:end])}, true
}
