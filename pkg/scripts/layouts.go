// Package scripts knows the chunk layouts of map script files.
//
// A script file nests PlayerScriptsList > ScriptList > (ScriptGroup >)
// Script > OrCondition > Condition, with ScriptAction and
// ScriptActionFalse chunks directly under Script. ScriptsPlayers and
// ScriptTeams carry the player and team tables. ScriptTeams, ObjectsList,
// PolygonTriggers and WaypointsList are plain arrays of dicts.
package scripts

import (
	"github.com/Faultbox/datachunk/pkg/chunk"
	"github.com/Faultbox/datachunk/pkg/convert"
)

// Chunk labels.
const (
	LabelPlayerScriptsList = "PlayerScriptsList"
	LabelScriptList        = "ScriptList"
	LabelScriptGroup       = "ScriptGroup"
	LabelScript            = "Script"
	LabelOrCondition       = "OrCondition"
	LabelCondition         = "Condition"
	LabelScriptAction      = "ScriptAction"
	LabelScriptActionFalse = "ScriptActionFalse"
	LabelScriptsPlayers    = "ScriptsPlayers"
	LabelScriptTeams       = "ScriptTeams"
	LabelObjectsList       = "ObjectsList"
	LabelPolygonTriggers   = "PolygonTriggers"
	LabelWaypointsList     = "WaypointsList"
)

// ParameterCoord3D is the parameter type stored as three reals.
const ParameterCoord3D = 16

// Versions from which optional fields are present.
const (
	scriptDelayVersion      = 2
	groupSubroutineVersion  = 2
	conditionNameKeyVersion = 4
	actionNameKeyVersion    = 2
	playersDictVersion      = 2
)

// RegisterLayouts adds every script chunk layout to schema.
func RegisterLayouts(schema *convert.Schema) {
	children := func(c *convert.Copier, _ chunk.Version) error { return c.Children() }

	schema.Register(LabelPlayerScriptsList, convert.AnyParent, children)
	schema.Register(LabelScriptList, convert.AnyParent, children)
	schema.Register(LabelOrCondition, convert.AnyParent, children)
	schema.Register(LabelScriptGroup, convert.AnyParent, copyScriptGroup)
	schema.Register(LabelScript, convert.AnyParent, copyScript)
	schema.Register(LabelCondition, convert.AnyParent, copyCondition)
	schema.Register(LabelScriptAction, convert.AnyParent, copyAction)
	schema.Register(LabelScriptActionFalse, convert.AnyParent, copyAction)
	schema.Register(LabelScriptsPlayers, convert.AnyParent, copyScriptsPlayers)
	for _, label := range []string{LabelScriptTeams, LabelObjectsList, LabelPolygonTriggers, LabelWaypointsList} {
		schema.Register(label, convert.AnyParent, copyDicts)
	}
}

// NewSchema returns a schema holding the script layouts.
func NewSchema() *convert.Schema {
	s := convert.NewSchema()
	RegisterLayouts(s)
	return s
}

func copyScript(c *convert.Copier, version chunk.Version) error {
	c.AsciiString() // name
	c.AsciiString() // comment
	c.AsciiString() // condition comment
	c.AsciiString() // action comment
	for i := 0; i < 6; i++ {
		c.Byte() // active, deactivate on success, easy, normal, hard, subroutine
	}
	if version >= scriptDelayVersion {
		c.Int() // evaluation delay in seconds
	}
	return c.Children()
}

func copyScriptGroup(c *convert.Copier, version chunk.Version) error {
	c.AsciiString()
	c.Byte()
	if version >= groupSubroutineVersion {
		c.Byte()
	}
	return c.Children()
}

func copyParameters(c *convert.Copier) {
	n := c.Int()
	for i := int32(0); i < n && c.Err() == nil; i++ {
		if c.Int() == ParameterCoord3D {
			c.Real()
			c.Real()
			c.Real()
			continue
		}
		c.Int()
		c.Real()
		c.AsciiString()
	}
}

func copyCondition(c *convert.Copier, version chunk.Version) error {
	c.Int()
	if version >= conditionNameKeyVersion {
		c.NameKey()
	}
	copyParameters(c)
	return c.Err()
}

func copyAction(c *convert.Copier, version chunk.Version) error {
	c.Int()
	if version >= actionNameKeyVersion {
		c.NameKey()
	}
	copyParameters(c)
	return c.Err()
}

func copyScriptsPlayers(c *convert.Copier, version chunk.Version) error {
	var withDicts int32
	if version >= playersDictVersion {
		withDicts = c.Int()
	}
	n := c.Int()
	for i := int32(0); i < n && c.Err() == nil; i++ {
		c.AsciiString()
		if withDicts != 0 {
			c.Dict()
		}
	}
	return c.Err()
}

// copyDicts copies a chunk made of dicts only.
func copyDicts(c *convert.Copier, _ chunk.Version) error {
	for !c.AtEnd() {
		c.Dict()
	}
	return c.Err()
}
