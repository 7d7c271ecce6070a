package trivia

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"

	"github.com/guildmod/warden/cache"

	"github.com/google/uuid"
)

// record field names
const (
	FieldQuestion    = "question"
	FieldAnswer      = "answer"
	FieldCategory    = "category"
	FieldCollections = "collections"
	FieldAuthor      = "author"
	FieldName        = "name"
	FieldDescription = "description"
)

// index names
const (
	IndexCompleteness = "completeness"
	IndexCollections  = "collections"
	IndexCategory     = "category"
	IndexAuthor       = "author"
)

var ErrQuestionNotFound = errors.New("question not found")
var ErrCollectionNotFound = errors.New("collection not found")

// fields a question needs before it can be asked
var requiredFields = []string{FieldQuestion, FieldAnswer, FieldCategory}

type Question struct {
	ID          string   `json:"id" yaml:"id"`
	Question    string   `json:"question" yaml:"question"`
	Answer      string   `json:"answer" yaml:"answer"`
	Category    string   `json:"category,omitempty" yaml:"category,omitempty"`
	Collections []string `json:"collections,omitempty" yaml:"collections,omitempty"`
	Author      string   `json:"author,omitempty" yaml:"author,omitempty"`
}

func (q Question) record() cache.Record {
	rec := cache.Record{}
	if q.Question != "" {
		rec[FieldQuestion] = q.Question
	}
	if q.Answer != "" {
		rec[FieldAnswer] = q.Answer
	}
	if q.Category != "" {
		rec[FieldCategory] = q.Category
	}
	if len(q.Collections) > 0 {
		rec[FieldCollections] = dedupeStrings(q.Collections)
	}
	if q.Author != "" {
		rec[FieldAuthor] = q.Author
	}
	return rec
}

func questionFromRecord(id string, rec cache.Record) Question {
	q := Question{ID: id}
	q.Question, _ = rec[FieldQuestion].(string)
	q.Answer, _ = rec[FieldAnswer].(string)
	q.Category, _ = rec[FieldCategory].(string)
	q.Author, _ = rec[FieldAuthor].(string)
	if coll, ok := rec[FieldCollections].([]string); ok {
		q.Collections = slices.Clone(coll)
	}
	return q
}

type Collection struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Author      string `json:"author,omitempty" yaml:"author,omitempty"`
}

func (c Collection) record() cache.Record {
	rec := cache.Record{FieldName: c.Name}
	if c.Description != "" {
		rec[FieldDescription] = c.Description
	}
	if c.Author != "" {
		rec[FieldAuthor] = c.Author
	}
	return rec
}

func collectionFromRecord(rec cache.Record) Collection {
	var c Collection
	c.Name, _ = rec[FieldName].(string)
	c.Description, _ = rec[FieldDescription].(string)
	c.Author, _ = rec[FieldAuthor].(string)
	return c
}

// Bank holds trivia questions and the named collections they are grouped into.
//
// Questions are indexed by completeness (against question, answer and category), by collection
// membership, and by category. Every collection a question references also exists as a
// collection entry.
type Bank struct {
	questions    *cache.Cache
	collections  *cache.Cache
	completeness *cache.CompletenessIndex
}

func NewBank() *Bank {
	b := &Bank{
		questions:    cache.New(),
		collections:  cache.New(),
		completeness: cache.NewCompletenessIndex(IndexCompleteness, requiredFields...),
	}
	// index names are fixed, so registration can't collide
	_ = b.questions.AddIndex(b.completeness)
	_ = b.questions.AddIndex(cache.NewCollectionIndex(IndexCollections, FieldCollections))
	_ = b.questions.AddIndex(cache.NewFieldIndex(IndexCategory, FieldCategory))
	_ = b.collections.AddIndex(cache.NewFieldIndex(IndexAuthor, FieldAuthor))
	return b
}

// AddQuestion stores a new question, assigning an ID if it has none. Collections it references are
// created if missing.
func (b *Bank) AddQuestion(q Question) (Question, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	} else if b.questions.Contains(q.ID) {
		return Question{}, fmt.Errorf("question already exists: %s", q.ID)
	}
	for _, name := range q.Collections {
		b.ensureCollection(name)
	}
	b.questions.Put(q.ID, q.record())
	return b.mustQuestion(q.ID), nil
}

// EditQuestion merges changes into an existing question. Only question, answer, category and
// author may be changed this way; an empty string clears a field.
func (b *Bank) EditQuestion(id string, changes map[string]string) (Question, error) {
	patch := cache.Record{}
	var clear []string
	for k, v := range changes {
		switch k {
		case FieldQuestion, FieldAnswer, FieldCategory, FieldAuthor:
		default:
			return Question{}, fmt.Errorf("field can not be edited: %s", k)
		}
		if v == "" {
			clear = append(clear, k)
			continue
		}
		patch[k] = v
	}
	err := b.questions.Mutate(id, func(data cache.Record) error {
		for k, v := range patch {
			data[k] = v
		}
		for _, k := range clear {
			delete(data, k)
		}
		return nil
	})
	if errors.Is(err, cache.ErrNotFound) {
		return Question{}, fmt.Errorf("%w: %s", ErrQuestionNotFound, id)
	} else if err != nil {
		return Question{}, err
	}
	return b.mustQuestion(id), nil
}

func (b *Bank) RemoveQuestion(id string) bool {
	return b.questions.Delete(id)
}

func (b *Bank) Question(id string) (Question, bool) {
	rec, ok := b.questions.Get(id, cache.CopyDeep)
	if !ok {
		return Question{}, false
	}
	return questionFromRecord(id, rec), true
}

func (b *Bank) mustQuestion(id string) Question {
	q, _ := b.Question(id)
	return q
}

func (b *Bank) NumQuestions() int {
	return b.questions.Len()
}

// AddToCollection files a question under a collection, creating the collection if needed.
func (b *Bank) AddToCollection(id, name string) error {
	if !b.questions.Contains(id) {
		return fmt.Errorf("%w: %s", ErrQuestionNotFound, id)
	}
	b.ensureCollection(name)
	return b.questions.Mutate(id, func(data cache.Record) error {
		coll, _ := data[FieldCollections].([]string)
		data[FieldCollections] = dedupeStrings(append(coll, name))
		return nil
	})
}

func (b *Bank) RemoveFromCollection(id, name string) error {
	err := b.questions.Mutate(id, func(data cache.Record) error {
		coll, _ := data[FieldCollections].([]string)
		coll = slices.DeleteFunc(coll, func(c string) bool { return c == name })
		if len(coll) == 0 {
			delete(data, FieldCollections)
		} else {
			data[FieldCollections] = coll
		}
		return nil
	})
	if errors.Is(err, cache.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrQuestionNotFound, id)
	}
	return err
}

func (b *Bank) ensureCollection(name string) {
	if !b.collections.Contains(name) {
		b.collections.Put(name, Collection{Name: name}.record())
	}
}

// PutCollection creates or updates collection metadata.
func (b *Bank) PutCollection(c Collection) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("collection name is required")
	}
	_, err := b.collections.Update(c.Name, c.record(), true)
	return err
}

// DeleteCollection removes a collection and takes every question out of it. The questions
// themselves are kept.
func (b *Bank) DeleteCollection(name string) error {
	if !b.collections.Delete(name) {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	keys, err := b.questions.GetKeys(IndexCollections, name)
	if err != nil {
		return err
	}
	for _, id := range keys.Sorted() {
		if err := b.RemoveFromCollection(id, name); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bank) Collection(name string) (Collection, bool) {
	rec, ok := b.collections.Get(name, cache.CopyShallow)
	if !ok {
		return Collection{}, false
	}
	return collectionFromRecord(rec), true
}

// Collections lists all collections, ordered by name.
func (b *Bank) Collections() []Collection {
	var out []Collection
	for _, rec := range b.collections.All() {
		out = append(out, collectionFromRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (b *Bank) CollectionsByAuthor(author string) []Collection {
	entries, _ := b.collections.Lookup(IndexAuthor, author, cache.CopyShallow)
	out := make([]Collection, 0, len(entries))
	for _, e := range entries {
		out = append(out, collectionFromRecord(e.Data))
	}
	return out
}

func (b *Bank) lookup(index, key string) []Question {
	entries, err := b.questions.Lookup(index, key, cache.CopyDeep)
	if err != nil {
		return nil
	}
	out := make([]Question, 0, len(entries))
	for _, e := range entries {
		out = append(out, questionFromRecord(e.Key, e.Data))
	}
	return out
}

// InCollection returns the questions filed under a collection, ordered by ID.
func (b *Bank) InCollection(name string) []Question {
	return b.lookup(IndexCollections, name)
}

func (b *Bank) ByCategory(category string) []Question {
	return b.lookup(IndexCategory, category)
}

// ByCompleteness returns the questions in one of the cache.Bucket* buckets.
func (b *Bank) ByCompleteness(bucket string) []Question {
	return b.lookup(IndexCompleteness, bucket)
}

// Random picks a complete question from the collection (or from the whole bank if collection is
// empty). Returns false when there is nothing to ask.
func (b *Bank) Random(collection string, rng *rand.Rand) (Question, bool) {
	complete, err := b.questions.GetKeys(IndexCompleteness, cache.BucketComplete)
	if err != nil {
		return Question{}, false
	}
	candidates := complete
	if collection != "" {
		inColl, err := b.questions.GetKeys(IndexCollections, collection)
		if err != nil {
			return Question{}, false
		}
		candidates = make(cache.KeySet)
		for k := range inColl {
			if complete.Has(k) {
				candidates[k] = struct{}{}
			}
		}
	}
	if len(candidates) == 0 {
		return Question{}, false
	}
	ids := candidates.Sorted()
	var idx int
	if rng != nil {
		idx = rng.IntN(len(ids))
	} else {
		idx = rand.IntN(len(ids))
	}
	return b.Question(ids[idx])
}

func dedupeStrings(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
