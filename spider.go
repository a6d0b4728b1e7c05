// Package spider provides the core of a distributed web crawler: a shared,
// deduplicated URL frontier, a scored outbound proxy pool, a robots.txt
// politeness gate, and the fetch loop that ties them together.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency (e.g., redis/, sqlite/, robotstxt/).
package spider
