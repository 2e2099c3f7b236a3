package scripts

import (
	"fmt"

	"github.com/Faultbox/datachunk/pkg/chunk"
)

// Script is the header of one script plus counts of its contents.
type Script struct {
	Name         string
	Group        string // "" for scripts directly in a ScriptList
	List         int    // index of the enclosing ScriptList
	Active       bool
	Subroutine   bool
	DelaySeconds int32
	Conditions   int
	Actions      int
	FalseActions int
}

// Summary is an overview of a script file.
type Summary struct {
	Players []string
	Lists   int
	Groups  []string
	Scripts []Script
	Teams   int
}

// summarizer holds the dispatch state while a file is walked.
type summarizer struct {
	sum     Summary
	current *Script
}

// Summarize walks a script stream with scoped parsers and collects an
// overview. Chunks it does not know are skipped.
func Summarize(src chunk.Source) (*Summary, error) {
	s := &summarizer{}

	descend := func(src chunk.Source, _ chunk.Info, _ any) error {
		return src.Parse(nil)
	}

	regs := []struct {
		label, parent string
		fn            chunk.ParserFunc
		userData      any
	}{
		{LabelPlayerScriptsList, "", descend, nil},
		{LabelScriptList, LabelPlayerScriptsList, s.parseScriptList, nil},
		{LabelScriptList, "", s.parseScriptList, nil},
		{LabelScript, LabelScriptList, s.parseScript, ""},
		{LabelScriptGroup, LabelScriptList, s.parseScriptGroup, nil},
		{LabelScript, LabelScriptGroup, s.parseScript, nil},
		{LabelOrCondition, LabelScript, descend, nil},
		{LabelCondition, LabelOrCondition, s.countCondition, nil},
		{LabelScriptAction, LabelScript, s.countAction, false},
		{LabelScriptActionFalse, LabelScript, s.countAction, true},
		{LabelScriptsPlayers, "", s.parsePlayers, nil},
		{LabelScriptTeams, "", s.parseTeams, nil},
	}
	for _, r := range regs {
		if err := src.RegisterParser(r.label, r.parent, r.fn, r.userData); err != nil {
			return nil, err
		}
	}

	if err := src.Parse(nil); err != nil {
		return nil, err
	}
	return &s.sum, nil
}

func (s *summarizer) parseScriptList(src chunk.Source, _ chunk.Info, _ any) error {
	s.sum.Lists++
	return src.Parse(nil)
}

func (s *summarizer) parseScriptGroup(src chunk.Source, info chunk.Info, _ any) error {
	name, err := src.ReadAsciiString()
	if err != nil {
		return err
	}
	if _, err := src.ReadByte(); err != nil {
		return err
	}
	if info.Version >= groupSubroutineVersion {
		if _, err := src.ReadByte(); err != nil {
			return err
		}
	}
	s.sum.Groups = append(s.sum.Groups, name)
	return src.Parse(name)
}

// parseScript reads the script header. userData carries the enclosing
// group name.
func (s *summarizer) parseScript(src chunk.Source, info chunk.Info, userData any) error {
	group, _ := userData.(string)
	sc := Script{Group: group, List: s.sum.Lists - 1}

	var err error
	if sc.Name, err = src.ReadAsciiString(); err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		if _, err := src.ReadAsciiString(); err != nil {
			return err
		}
	}

	var flags [6]byte
	for i := range flags {
		if flags[i], err = src.ReadByte(); err != nil {
			return err
		}
	}
	sc.Active = flags[0] != 0
	sc.Subroutine = flags[5] != 0

	if info.Version >= scriptDelayVersion {
		if sc.DelaySeconds, err = src.ReadInt(); err != nil {
			return err
		}
	}

	s.current = &sc
	if err := src.Parse(nil); err != nil {
		return fmt.Errorf("script %q: %w", sc.Name, err)
	}
	s.current = nil
	s.sum.Scripts = append(s.sum.Scripts, sc)
	return nil
}

func (s *summarizer) countCondition(_ chunk.Source, _ chunk.Info, _ any) error {
	if s.current != nil {
		s.current.Conditions++
	}
	return nil
}

func (s *summarizer) countAction(_ chunk.Source, _ chunk.Info, userData any) error {
	if s.current == nil {
		return nil
	}
	if isFalse, _ := userData.(bool); isFalse {
		s.current.FalseActions++
	} else {
		s.current.Actions++
	}
	return nil
}

func (s *summarizer) parsePlayers(src chunk.Source, info chunk.Info, _ any) error {
	var withDicts int32
	var err error
	if info.Version >= playersDictVersion {
		if withDicts, err = src.ReadInt(); err != nil {
			return err
		}
	}
	n, err := src.ReadInt()
	if err != nil {
		return err
	}
	for i := int32(0); i < n; i++ {
		name, err := src.ReadAsciiString()
		if err != nil {
			return fmt.Errorf("player %d: %w", i, err)
		}
		if withDicts != 0 {
			if _, err := src.ReadDict(); err != nil {
				return fmt.Errorf("player %q: %w", name, err)
			}
		}
		s.sum.Players = append(s.sum.Players, name)
	}
	return nil
}

func (s *summarizer) parseTeams(src chunk.Source, _ chunk.Info, _ any) error {
	for !src.AtEndOfChunk() {
		if _, err := src.ReadDict(); err != nil {
			return fmt.Errorf("team %d: %w", s.sum.Teams, err)
		}
		s.sum.Teams++
	}
	return nil
}
