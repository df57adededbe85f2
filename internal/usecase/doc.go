// Package usecase defines the canonical use case record shared by the
// extraction pipeline, and the fixed English vocabularies the heuristics
// scan for.
//
// A UseCase that has passed through normalization never has an empty list
// field. Missing content is represented by a placeholder phrase so callers
// can distinguish "unspecified" from "absent" without nil checks:
//
//	uc := usecase.UseCase{Title: "Customer searches for books"}
//	uc.FillPlaceholders()
//	fmt.Println(uc.Preconditions) // [User is authenticated]
//
// # Vocabularies
//
// ActionVerbs, Actors and SecurityCategories are English-only. Text written in
// other languages or in heavy domain jargon degrades estimation and fallback
// extraction rather than failing.
package usecase
