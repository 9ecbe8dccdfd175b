package annotation

import "github.com/helixml/marginalia/domain/repository"

// WithDocument filters by the "document" column.
func WithDocument(document string) repository.Option {
	return repository.WithCondition("document", document)
}

// WithCFI filters by the "cfi" column.
func WithCFI(identifier string) repository.Option {
	return repository.WithCondition("cfi", identifier)
}

// WithCFIIn filters by several identifiers.
func WithCFIIn(identifiers []string) repository.Option {
	return repository.WithConditionIn("cfi", identifiers)
}

// WithColor filters by the "color" column.
func WithColor(color string) repository.Option {
	return repository.WithCondition("color", color)
}

// WithSearch matches text or note containing needle, ignoring case.
func WithSearch(needle string) repository.Option {
	return repository.WithContains(needle, "text", "note")
}

// WithNewestFirst orders by creation time, newest first.
func WithNewestFirst() repository.Option {
	return repository.WithOrderDesc("created_at")
}

// WithOldestFirst orders by creation time, oldest first.
func WithOldestFirst() repository.Option {
	return repository.WithOrderAsc("created_at")
}

// WithSection filters by the stored section key.
func WithSection(section string) repository.Option {
	return repository.WithCondition("section", section)
}
