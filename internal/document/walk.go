package document

// Visitor is called once for every field of every document reached by Walk.
// Returning ok=true replaces the field's value in place; keys never change.
type Visitor func(key string, v Value) (replacement Value, ok bool)

// Walk visits the fields of d in order and descends into nested documents,
// including documents held inside arrays. Array elements that are not
// documents are never passed to visit.
func Walk(d *Document, visit Visitor) {
	if d == nil {
		return
	}
	for i := range d.fields {
		if nv, ok := visit(d.fields[i].Key, d.fields[i].Value); ok {
			d.fields[i].Value = nv
		}
		descend(d.fields[i].Value, visit)
	}
}

func descend(v Value, visit Visitor) {
	switch v.kind {
	case KindDocument:
		Walk(v.doc, visit)
	case KindArray:
		for _, item := range v.arr {
			descend(item, visit)
		}
	}
}
