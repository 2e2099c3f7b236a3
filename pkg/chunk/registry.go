package chunk

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

type registration struct {
	label       string
	parentLabel string
	fn          ParserFunc
	userData    any
}

// Registry maps (label, parent label) scopes to parser callbacks.
// The zero value is ready to use.
type Registry struct {
	entries []registration
}

// Register adds fn for chunks labeled label whose enclosing chunk is
// labeled parentLabel. An empty parentLabel matches top-level chunks only.
func (g *Registry) Register(label, parentLabel string, fn ParserFunc, userData any) error {
	if fn == nil {
		return fmt.Errorf("nil parser for %q", label)
	}
	if g.lookup(label, parentLabel) != nil {
		return fmt.Errorf("%w: %q under %q", ErrDuplicateParser, label, parentLabel)
	}
	g.entries = append(g.entries, registration{
		label:       label,
		parentLabel: parentLabel,
		fn:          fn,
		userData:    userData,
	})
	return nil
}

// Len returns the number of registrations.
func (g *Registry) Len() int {
	return len(g.entries)
}

func (g *Registry) lookup(label, parentLabel string) *registration {
	for i := range g.entries {
		e := &g.entries[i]
		if e.label == label && e.parentLabel == parentLabel {
			return e
		}
	}
	return nil
}

// parse is the dispatch loop shared by every Source. It iterates the chunks
// at the current level, hands each to its parser and closes it afterwards,
// which skips chunks nobody parsed.
func parse(src Source, reg *Registry, userData any, log *zap.Logger) error {
	parentLabel := ""
	if src.Depth() > 0 {
		parentLabel = src.ChunkLabel()
	}

	for !src.AtEndOfStream() {
		if src.Depth() > 0 && src.AtEndOfChunk() {
			break
		}

		label, version, err := src.OpenChunk()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		if e := reg.lookup(label, parentLabel); e != nil {
			info := Info{
				Label:       label,
				ParentLabel: parentLabel,
				Version:     version,
				DataSize:    src.ChunkDataSize(),
			}
			ud := e.userData
			if userData != nil {
				ud = userData
			}
			if err := e.fn(src, info, ud); err != nil {
				return fmt.Errorf("parsing %q: %w", label, err)
			}
		} else {
			log.Debug("no parser for chunk",
				zap.String("label", label),
				zap.String("parent", parentLabel),
				zap.Uint16("version", version))
		}

		if err := src.CloseChunk(); err != nil {
			return err
		}
	}
	return nil
}
