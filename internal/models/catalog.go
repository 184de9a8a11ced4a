package models

import "time"

// Person is an individual whose credentials and contracts are tracked.
type Person struct {
	ID         string `json:"id" yaml:"id"`
	FullName   string `json:"full_name" yaml:"full_name"`
	NationalID string `json:"national_id,omitempty" yaml:"national_id,omitempty"`
}

// Instructor is the teaching registration of a person.
type Instructor struct {
	ID           string    `json:"id" yaml:"id"`
	PersonID     string    `json:"person_id" yaml:"person_id"`
	RegisteredAt time.Time `json:"registered_at" yaml:"-"`
}

// Subject is a course an instructor can be contracted for.
type Subject struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Period is an academic period.
type Period struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// CredentialType classifies a document or a title.
type CredentialType struct {
	ID   string         `json:"id" yaml:"id"`
	Kind CredentialKind `json:"kind" yaml:"kind"`
	Name string         `json:"name" yaml:"name"`
}

// Catalog is a bulk set of reference entities.
type Catalog struct {
	Persons         []Person         `json:"persons,omitempty" yaml:"persons,omitempty"`
	Instructors     []Instructor     `json:"instructors,omitempty" yaml:"instructors,omitempty"`
	Subjects        []Subject        `json:"subjects,omitempty" yaml:"subjects,omitempty"`
	Periods         []Period         `json:"periods,omitempty" yaml:"periods,omitempty"`
	CredentialTypes []CredentialType `json:"credential_types,omitempty" yaml:"credential_types,omitempty"`
}
