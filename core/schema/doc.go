/*
Package schema defines the core types for runtime model definitions.

A model definition describes a new entity: its name and an ordered list of typed
fields. From a definition the engine derives a table, a record shape and a group of
CRUD endpoints, all at runtime.

# Model Definition

A minimal definition in JSON (the body of POST /rest/generate-rest-api):

	{
	  "name": "Book",
	  "fields": [
	    {"name": "title",     "type": "string"},
	    {"name": "pages",     "type": "integer", "default": "100"},
	    {"name": "published", "type": "timestamp", "required": false},
	    {"name": "author_id", "type": "int", "foreign_key": "Author.id"}
	  ]
	}

The same definition may be written in YAML for the validate command.

# Field Kinds

The set of kinds is closed:

  - string:    Text value (alias: str)
  - integer:   64-bit integer (alias: int)
  - float:     64-bit float
  - boolean:   true/false (alias: bool)
  - timestamp: Date/time value (alias: datetime)

Any other type string is rejected with ErrUnknownFieldType.

# Primary Keys

At most one field may set primary_key. When none does, a field named "id" is the key.
When there is no such field either, an implicit auto-assigned integer "id" key is added.

# Values

Records are maps from field name to Value, a tagged union over the five kinds plus
null. Value marshals to native JSON and converts to and from database driver values.
*/
package schema
