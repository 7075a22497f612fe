package runner

import (
	"reflect"
	"sort"
	"strconv"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/domain"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/wikibase"
)

// diffDocuments computes the structural difference between an entity's
// original remote document and the accumulated in-memory document of a
// combined chain, as JSON-patch operations. Combined commands only ever
// append statements and aliases or extend existing statements, so the diff
// covers those two sections. Diffing is always original vs accumulated:
// intermediate snapshots are never compared against each other.
func diffDocuments(original, acc *domain.Document) []wikibase.PatchOp {
	var ops []wikibase.PatchOp

	for _, property := range sortedKeys(acc.Statements) {
		accList := acc.Statements[property]
		origList := original.Statements[property]
		if len(origList) == 0 {
			ops = append(ops, wikibase.PatchOp{
				Op:    "add",
				Path:  "/statements/" + property,
				Value: accList,
			})
			continue
		}
		for i, st := range accList {
			switch {
			case i >= len(origList):
				ops = append(ops, wikibase.PatchOp{
					Op:    "add",
					Path:  "/statements/" + property + "/-",
					Value: st,
				})
			case !reflect.DeepEqual(origList[i], st):
				ops = append(ops, wikibase.PatchOp{
					Op:    "replace",
					Path:  "/statements/" + property + "/" + strconv.Itoa(i),
					Value: st,
				})
			}
		}
	}

	for _, language := range sortedKeys(acc.Aliases) {
		accList := acc.Aliases[language]
		origList := original.Aliases[language]
		if len(origList) == 0 {
			ops = append(ops, wikibase.PatchOp{
				Op:    "add",
				Path:  "/aliases/" + language,
				Value: accList,
			})
			continue
		}
		for i, alias := range accList {
			if i >= len(origList) {
				ops = append(ops, wikibase.PatchOp{
					Op:    "add",
					Path:  "/aliases/" + language + "/-",
					Value: alias,
				})
			}
		}
	}

	return ops
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
