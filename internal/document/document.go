// Package document converts between study graphs and their JSON document
// form. Incoming documents omit identifiers for entities that do not exist
// yet; documents written back carry identifiers and version stamps.
package document

// Study is the top-level document.
type Study struct {
	ID          string       `json:"id,omitempty"`
	Version     int64        `json:"version,omitempty"`
	Label       string       `json:"label"`
	OtuSets     []OtuSet     `json:"otu_sets,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// OtuSet groups OTUs with the data scored for them.
type OtuSet struct {
	ID           string        `json:"id,omitempty"`
	Version      int64         `json:"version,omitempty"`
	Label        string        `json:"label"`
	Description  string        `json:"description,omitempty"`
	Otus         []Otu         `json:"otus,omitempty"`
	Matrices     []Matrix      `json:"matrices,omitempty"`
	SequenceSets []SequenceSet `json:"sequence_sets,omitempty"`
	TreeSets     []TreeSet     `json:"tree_sets,omitempty"`
	Attachments  []Attachment  `json:"attachments,omitempty"`
}

type Otu struct {
	ID          string       `json:"id,omitempty"`
	Version     int64        `json:"version,omitempty"`
	Label       string       `json:"label"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Matrix is a character matrix. Molecular matrices (dna, protein) give their
// width in Columns and at most one entry in Characters naming the shared
// molecule character.
type Matrix struct {
	ID             string       `json:"id,omitempty"`
	Version        int64        `json:"version,omitempty"`
	Type           string       `json:"type"`
	Label          string       `json:"label"`
	Description    string       `json:"description,omitempty"`
	Columns        int          `json:"columns,omitempty"`
	Characters     []Character  `json:"characters,omitempty"`
	ColumnVersions []int64      `json:"column_versions,omitempty"`
	Rows           []Row        `json:"rows,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// Character states are keyed by state number.
type Character struct {
	ID      string         `json:"id,omitempty"`
	Version int64          `json:"version,omitempty"`
	Label   string         `json:"label,omitempty"`
	States  map[int]string `json:"states,omitempty"`
}

// Row holds the cells of one OTU, referenced by its index in the OTU set.
// Cells use the notation described at ParseCell.
type Row struct {
	ID      string   `json:"id,omitempty"`
	Version int64    `json:"version,omitempty"`
	Otu     int      `json:"otu"`
	Cells   []string `json:"cells"`
}

type SequenceSet struct {
	ID        string     `json:"id,omitempty"`
	Version   int64      `json:"version,omitempty"`
	Type      string     `json:"type"`
	Label     string     `json:"label"`
	Aligned   bool       `json:"aligned,omitempty"`
	Sequences []Sequence `json:"sequences,omitempty"`
}

// Sequence references its OTU by index in the OTU set.
type Sequence struct {
	ID      string `json:"id,omitempty"`
	Version int64  `json:"version,omitempty"`
	Otu     int    `json:"otu"`
	Name    string `json:"name,omitempty"`
	Value   string `json:"value"`
}

type TreeSet struct {
	ID      string `json:"id,omitempty"`
	Version int64  `json:"version,omitempty"`
	Label   string `json:"label"`
	Trees   []Tree `json:"trees,omitempty"`
}

type Tree struct {
	ID      string `json:"id,omitempty"`
	Version int64  `json:"version,omitempty"`
	Label   string `json:"label"`
	Newick  string `json:"newick"`
}

// Attachment is a typed value; the type is the (namespace, type) pair.
type Attachment struct {
	ID        string `json:"id,omitempty"`
	Version   int64  `json:"version,omitempty"`
	Namespace string `json:"namespace"`
	Type      string `json:"type"`
	Value     string `json:"value"`
}
