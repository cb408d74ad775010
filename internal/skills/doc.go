// Package skills implements SKILL.md discovery and metadata extraction.
//
// A skill is a directory containing a SKILL.md file with YAML frontmatter:
//
// ---
// name: my-skill
// description: does a thing
// metadata:
//
//	short-description: optional shorter description
//
// ---
package skills
