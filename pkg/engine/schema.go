package engine

import (
	"github.com/typesense/typesense-go/v3/typesense/api"
	"github.com/typesense/typesense-go/v3/typesense/api/pointer"
)

// FieldType enumerates the field types a collection schema may declare.
type FieldType string

const (
	FieldString      FieldType = "string"
	FieldStringArray FieldType = "string[]"
	FieldInt64       FieldType = "int64"
	FieldFloat       FieldType = "float"
	FieldBool        FieldType = "bool"
	FieldGeopoint    FieldType = "geopoint"
)

// Field declares one indexed document field.
type Field struct {
	Name     string
	Type     FieldType
	Facet    bool
	Optional bool
	Sort     bool
}

// Schema declares a collection: its fields, which of them the default
// query targets (with weights), and the default sort. The collection
// name uniquely determines the schema.
type Schema struct {
	Name                string
	Fields              []Field
	DefaultSortingField string
	QueryBy             []string
	QueryByWeights      []int
	EnableNestedFields  bool
}

func (s Schema) toAPI() *api.CollectionSchema {
	fields := make([]api.Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		af := api.Field{Name: f.Name, Type: string(f.Type)}
		if f.Facet {
			af.Facet = pointer.True()
		}
		if f.Optional {
			af.Optional = pointer.True()
		}
		if f.Sort {
			af.Sort = pointer.True()
		}
		fields = append(fields, af)
	}
	cs := &api.CollectionSchema{Name: s.Name, Fields: fields}
	if s.DefaultSortingField != "" {
		cs.DefaultSortingField = pointer.String(s.DefaultSortingField)
	}
	if s.EnableNestedFields {
		cs.EnableNestedFields = pointer.True()
	}
	return cs
}

// Built-in collections, one per entity type. Every schema carries an
// updated_at ranking signal; chapters additionally carry a _geoloc
// geopoint for distance sort.
var builtinSchemas = []Schema{
	{
		Name: "chapters",
		Fields: []Field{
			{Name: "key", Type: FieldString, Facet: true},
			{Name: "name", Type: FieldString},
			{Name: "summary", Type: FieldString, Optional: true},
			{Name: "suggested_location", Type: FieldString, Optional: true},
			{Name: "country", Type: FieldString, Facet: true, Optional: true},
			{Name: "region", Type: FieldString, Facet: true, Optional: true},
			{Name: "postal_code", Type: FieldString, Optional: true},
			{Name: "leaders", Type: FieldStringArray, Optional: true},
			{Name: "tags", Type: FieldStringArray, Facet: true, Optional: true},
			{Name: "related_urls", Type: FieldStringArray, Optional: true},
			{Name: "_geoloc", Type: FieldGeopoint, Optional: true},
			{Name: "is_active", Type: FieldBool, Facet: true},
			{Name: "created_at", Type: FieldInt64},
			{Name: "updated_at", Type: FieldInt64, Sort: true},
		},
		DefaultSortingField: "updated_at",
		QueryBy:             []string{"name", "leaders", "suggested_location", "country", "region", "tags", "summary"},
		QueryByWeights:      []int{8, 6, 5, 4, 4, 3, 2},
	},
	{
		Name: "committees",
		Fields: []Field{
			{Name: "key", Type: FieldString, Facet: true},
			{Name: "name", Type: FieldString},
			{Name: "summary", Type: FieldString, Optional: true},
			{Name: "leaders", Type: FieldStringArray, Optional: true},
			{Name: "tags", Type: FieldStringArray, Facet: true, Optional: true},
			{Name: "created_at", Type: FieldInt64},
			{Name: "updated_at", Type: FieldInt64, Sort: true},
		},
		DefaultSortingField: "updated_at",
		QueryBy:             []string{"name", "leaders", "tags", "summary"},
		QueryByWeights:      []int{8, 5, 3, 2},
	},
	{
		Name: "events",
		Fields: []Field{
			{Name: "key", Type: FieldString, Facet: true},
			{Name: "name", Type: FieldString},
			{Name: "summary", Type: FieldString, Optional: true},
			{Name: "category", Type: FieldString, Facet: true, Optional: true},
			{Name: "suggested_location", Type: FieldString, Optional: true},
			{Name: "url", Type: FieldString, Optional: true},
			{Name: "start_date", Type: FieldInt64, Sort: true},
			{Name: "end_date", Type: FieldInt64, Optional: true},
			{Name: "updated_at", Type: FieldInt64, Sort: true},
		},
		DefaultSortingField: "start_date",
		QueryBy:             []string{"name", "category", "suggested_location", "summary"},
		QueryByWeights:      []int{8, 4, 4, 2},
	},
	{
		Name: "issues",
		Fields: []Field{
			{Name: "title", Type: FieldString},
			{Name: "summary", Type: FieldString, Optional: true},
			{Name: "hint", Type: FieldString, Optional: true},
			{Name: "project_key", Type: FieldString, Facet: true, Optional: true},
			{Name: "project_name", Type: FieldString, Optional: true},
			{Name: "repository_name", Type: FieldString, Optional: true},
			{Name: "labels", Type: FieldStringArray, Facet: true, Optional: true},
			{Name: "author_login", Type: FieldString, Optional: true},
			{Name: "author_name", Type: FieldString, Optional: true},
			{Name: "comments_count", Type: FieldInt64},
			{Name: "created_at", Type: FieldInt64},
			{Name: "updated_at", Type: FieldInt64, Sort: true},
		},
		DefaultSortingField: "updated_at",
		QueryBy:             []string{"title", "project_name", "repository_name", "labels", "summary", "hint"},
		QueryByWeights:      []int{8, 5, 5, 4, 3, 2},
	},
	{
		Name: "projects",
		Fields: []Field{
			{Name: "key", Type: FieldString, Facet: true},
			{Name: "name", Type: FieldString},
			{Name: "description", Type: FieldString, Optional: true},
			{Name: "summary", Type: FieldString, Optional: true},
			{Name: "level", Type: FieldString, Facet: true},
			{Name: "type", Type: FieldString, Facet: true, Optional: true},
			{Name: "languages", Type: FieldStringArray, Facet: true, Optional: true},
			{Name: "topics", Type: FieldStringArray, Facet: true, Optional: true},
			{Name: "tags", Type: FieldStringArray, Facet: true, Optional: true},
			{Name: "licenses", Type: FieldStringArray, Facet: true, Optional: true},
			{Name: "leaders", Type: FieldStringArray, Optional: true},
			{Name: "top_contributors", Type: FieldStringArray, Optional: true},
			{Name: "stars_count", Type: FieldInt64, Sort: true},
			{Name: "forks_count", Type: FieldInt64},
			{Name: "contributors_count", Type: FieldInt64, Sort: true},
			{Name: "issues_count", Type: FieldInt64},
			{Name: "releases_count", Type: FieldInt64},
			{Name: "repositories_count", Type: FieldInt64},
			{Name: "health_score", Type: FieldFloat, Optional: true, Sort: true},
			{Name: "is_active", Type: FieldBool, Facet: true},
			{Name: "created_at", Type: FieldInt64},
			{Name: "updated_at", Type: FieldInt64, Sort: true},
		},
		DefaultSortingField: "stars_count",
		QueryBy:             []string{"name", "leaders", "top_contributors", "languages", "topics", "tags", "description", "summary"},
		QueryByWeights:      []int{10, 6, 6, 4, 4, 4, 3, 2},
	},
	{
		Name: "releases",
		Fields: []Field{
			{Name: "name", Type: FieldString},
			{Name: "tag_name", Type: FieldString, Optional: true},
			{Name: "description", Type: FieldString, Optional: true},
			{Name: "project_key", Type: FieldString, Facet: true, Optional: true},
			{Name: "project_name", Type: FieldString, Optional: true},
			{Name: "repository_name", Type: FieldString, Optional: true},
			{Name: "author_login", Type: FieldString, Optional: true},
			{Name: "is_pre_release", Type: FieldBool, Facet: true},
			{Name: "published_at", Type: FieldInt64, Sort: true},
			{Name: "updated_at", Type: FieldInt64, Sort: true},
		},
		DefaultSortingField: "published_at",
		QueryBy:             []string{"name", "tag_name", "project_name", "repository_name", "description"},
		QueryByWeights:      []int{8, 6, 5, 5, 2},
	},
	{
		Name: "repositories",
		Fields: []Field{
			{Name: "key", Type: FieldString, Facet: true},
			{Name: "name", Type: FieldString},
			{Name: "description", Type: FieldString, Optional: true},
			{Name: "project_key", Type: FieldString, Facet: true, Optional: true},
			{Name: "project_name", Type: FieldString, Optional: true},
			{Name: "languages", Type: FieldStringArray, Facet: true, Optional: true},
			{Name: "topics", Type: FieldStringArray, Facet: true, Optional: true},
			{Name: "license", Type: FieldString, Facet: true, Optional: true},
			{Name: "stars_count", Type: FieldInt64, Sort: true},
			{Name: "forks_count", Type: FieldInt64},
			{Name: "contributors_count", Type: FieldInt64},
			{Name: "open_issues_count", Type: FieldInt64},
			{Name: "pushed_at", Type: FieldInt64},
			{Name: "updated_at", Type: FieldInt64, Sort: true},
		},
		DefaultSortingField: "stars_count",
		QueryBy:             []string{"name", "project_name", "languages", "topics", "description"},
		QueryByWeights:      []int{8, 5, 4, 4, 2},
	},
	{
		Name: "users",
		Fields: []Field{
			{Name: "login", Type: FieldString, Facet: true},
			{Name: "name", Type: FieldString, Optional: true},
			{Name: "company", Type: FieldString, Optional: true},
			{Name: "location", Type: FieldString, Optional: true},
			{Name: "title", Type: FieldString, Optional: true},
			{Name: "bio", Type: FieldString, Optional: true},
			{Name: "email", Type: FieldString, Optional: true},
			{Name: "followers_count", Type: FieldInt64, Sort: true},
			{Name: "following_count", Type: FieldInt64},
			{Name: "public_repositories_count", Type: FieldInt64},
			{Name: "created_at", Type: FieldInt64},
			{Name: "updated_at", Type: FieldInt64, Sort: true},
		},
		DefaultSortingField: "followers_count",
		QueryBy:             []string{"login", "name", "company", "location", "title", "bio"},
		QueryByWeights:      []int{8, 8, 4, 4, 3, 2},
	},
}

// Collections returns all built-in schemas.
func Collections() []Schema {
	out := make([]Schema, len(builtinSchemas))
	copy(out, builtinSchemas)
	return out
}

// CollectionSchema returns the built-in schema for a collection name.
func CollectionSchema(name string) (Schema, bool) {
	for _, s := range builtinSchemas {
		if s.Name == name {
			return s, true
		}
	}
	return Schema{}, false
}
