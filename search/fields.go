package search

import (
	"strings"

	"github.com/atomicbase/directory/data"
)

// Fields are the searchable columns, grouped by the table holding them.
// Meta lists metadata keys rather than columns.
type Fields struct {
	Entry   []string
	Address []string
	Phone   []string
	Meta    []string
}

// Empty reports whether no group has a field.
func (f Fields) Empty() bool {
	return len(f.Entry) == 0 && len(f.Address) == 0 && len(f.Phone) == 0 && len(f.Meta) == 0
}

var entryColumns = map[string]bool{
	"family_name": true, "first_name": true, "middle_name": true, "last_name": true,
	"title": true, "organization": true, "department": true,
	"contact_first_name": true, "contact_last_name": true,
	"bio": true, "notes": true,
}

var addressColumns = map[string]bool{
	"line_1": true, "line_2": true, "line_3": true, "line_4": true,
	"district": true, "county": true, "city": true, "state": true,
	"zipcode": true, "country": true,
}

const addressPrefix = "address_"

// GroupFields sorts configured field names into their tables. Unknown names
// are treated as metadata keys.
func GroupFields(names []string) Fields {
	var f Fields
	seen := map[string]bool{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		switch {
		case entryColumns[name]:
			f.Entry = append(f.Entry, name)
		case strings.HasPrefix(name, addressPrefix) && addressColumns[strings.TrimPrefix(name, addressPrefix)]:
			f.Address = append(f.Address, strings.TrimPrefix(name, addressPrefix))
		case name == "phone_number":
			f.Phone = append(f.Phone, "number")
		default:
			f.Meta = append(f.Meta, name)
		}
	}
	return f
}

// group is one searchable table.
type group struct {
	table    string
	idColumn string
	columns  []string
}

func (f Fields) tables() []group {
	var out []group
	if len(f.Entry) > 0 {
		out = append(out, group{data.TableEntries, "id", f.Entry})
	}
	if len(f.Address) > 0 {
		out = append(out, group{data.TableAddresses, "entry_id", f.Address})
	}
	if len(f.Phone) > 0 {
		out = append(out, group{data.TablePhones, "entry_id", f.Phone})
	}
	return out
}
