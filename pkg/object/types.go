package object

// Hash is a 64-character hex-encoded SHA-256 digest.
type Hash string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
	TypeTag    ObjectType = "tag"
)

// SchemaKind classifies the database object a tree entry describes.
type SchemaKind string

const (
	KindTable        SchemaKind = "TABLE"
	KindView         SchemaKind = "VIEW"
	KindFunction     SchemaKind = "FUNCTION"
	KindProcedure    SchemaKind = "PROCEDURE"
	KindIndex        SchemaKind = "INDEX"
	KindTrigger      SchemaKind = "TRIGGER"
	KindSequence     SchemaKind = "SEQUENCE"
	KindType         SchemaKind = "TYPE"
	KindUnclassified SchemaKind = "UNCLASSIFIED"
)

// Blob holds one normalized schema object definition.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object: a schema object path
// ("schema.name"), its kind, and the blob holding its definition.
type TreeEntry struct {
	Path     string
	Kind     SchemaKind
	BlobHash Hash
}

// TreeObj is a flat snapshot of every schema object at one point in
// history. Entries are kept sorted by Path so that logically identical
// snapshots serialize, and therefore hash, identically.
type TreeObj struct {
	Entries []TreeEntry // sorted by Path
}

// CommitObj is one node in the history DAG.
type CommitObj struct {
	TreeHash  Hash
	Parents   []Hash
	Author    string
	Timestamp int64
	Message   string
	Signature string
}

// TagObj is an annotated tag pointing at a commit.
type TagObj struct {
	TargetHash Hash
	Name       string
	Tagger     string
	Timestamp  int64
	Message    string
}
