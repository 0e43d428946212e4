package cnsim

// desc-topo.go holds the input-file representation of a topology and
// the run-time parameter layer.  The 'Desc' structs carry json and yaml
// tags so that a configuration serializes either way, selected by file
// extension.  An ExpCfg carries run-time overrides of link parameters,
// applied most-general-first so that specific assignments win.

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// A NodeDesc describes one node of the topology input file
type NodeDesc struct {
	Name string  `json:"name" yaml:"name"`
	X    float64 `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
}

// A LinkDesc describes one link of the topology input file.
// Latency is in milliseconds, bandwidth in Mbps, capacity in packets.
type LinkDesc struct {
	Name     string  `json:"name" yaml:"name"`
	NodeA    string  `json:"nodea" yaml:"nodea"`
	NodeB    string  `json:"nodeb" yaml:"nodeb"`
	Latency  float64 `json:"latency" yaml:"latency"`
	Bndwdth  float64 `json:"bandwidth" yaml:"bandwidth"`
	Capacity int     `json:"capacity" yaml:"capacity"`
	Policy   string  `json:"policy" yaml:"policy"`
}

// A TopoCfg is the file-level representation of a whole topology
type TopoCfg struct {
	Name  string     `json:"name" yaml:"name"`
	Nodes []NodeDesc `json:"nodes" yaml:"nodes"`
	Links []LinkDesc `json:"links" yaml:"links"`
}

// CreateTopoCfg is a constructor
func CreateTopoCfg(name string) *TopoCfg {
	tc := new(TopoCfg)
	tc.Name = name
	tc.Nodes = make([]NodeDesc, 0)
	tc.Links = make([]LinkDesc, 0)
	return tc
}

// AddNodeDesc appends a node description to the configuration
func (tc *TopoCfg) AddNodeDesc(name string, x, y float64) {
	tc.Nodes = append(tc.Nodes, NodeDesc{Name: name, X: x, Y: y})
}

// AddLinkDesc appends a link description to the configuration
func (tc *TopoCfg) AddLinkDesc(name, nodeA, nodeB string, latency, bndwdth float64, capacity int, policy string) {
	tc.Links = append(tc.Links,
		LinkDesc{Name: name, NodeA: nodeA, NodeB: nodeB, Latency: latency,
			Bndwdth: bndwdth, Capacity: capacity, Policy: policy})
}

// WriteToFile stores the TopoCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tc *TopoCfg) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*tc)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*tc, "", "\t")
	}

	if merr != nil {
		panic(merr)
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		panic(cerr)
	}
	_, werr := f.WriteString(string(bytes[:]))
	if werr != nil {
		panic(werr)
	}
	f.Close()
	return werr
}

// ReadTopoCfg deserializes a byte slice holding a representation of a
// TopoCfg struct.  If the input argument of dict (those bytes) is
// empty, the file whose name is given is read to acquire them.  A
// deserialized representation is returned, or an error if one is
// generated from a file read or the deserialization.
func ReadTopoCfg(filename string, useYAML bool, dict []byte) (*TopoCfg, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := TopoCfg{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}

	if err != nil {
		return nil, err
	}

	return &example, nil
}

// BuildTopology transforms a TopoCfg into a live Topology, validating
// every node and link description along the way
func BuildTopology(tc *TopoCfg) (*Topology, error) {
	topo := CreateTopology()
	for _, nd := range tc.Nodes {
		_, err := topo.AddNode(nd.Name, nd.X, nd.Y)
		if err != nil {
			return nil, fmt.Errorf("topology %s: %w", tc.Name, err)
		}
	}
	for _, ld := range tc.Links {
		_, err := topo.AddLink(ld.Name, ld.NodeA, ld.NodeB, ld.Latency, ld.Bndwdth, ld.Capacity, ld.Policy)
		if err != nil {
			return nil, fmt.Errorf("topology %s: %w", tc.Name, err)
		}
	}
	return topo, nil
}

// ExpParamObjs lists the kinds of objects a run-time parameter may configure
var ExpParamObjs []string = []string{"Link"}

// ExpAttributes lists, per object kind, the attribute classes a
// parameter may select besides "*" and "name%%"
var ExpAttributes map[string][]string = map[string][]string{
	"Link": {"tail-drop", "head-drop", "random-drop"},
}

// ExpParams lists, per object kind, the parameters that may be set
var ExpParams map[string][]string = map[string][]string{
	"Link": {"latency", "bandwidth", "capacity", "policy"},
}

// An ExpParameter struct describes an input to experiment configuration
// at run-time.  ParamObj identifies the kind of thing being configured,
// Attribute identifies the class of objects of that type the parameter
// applies to.  It may be "*" for a wild-card, "name%%xxyy" where "xxyy"
// is an object's name, or a drop-policy class selecting every link that
// carries that policy.
type ExpParameter struct {
	// Type of thing being configured
	ParamObj string `json:"paramObj" yaml:"paramObj"`

	// attribute identifier for this parameter
	Attribute string `json:"attribute" yaml:"attribute"`

	// ParameterType, e.g. "latency", "capacity"
	Param string `json:"param" yaml:"param"`

	// string-encoded value associated with type
	Value string `json:"value" yaml:"value"`
}

// CreateExpParameter is a constructor.  Completely fills in the struct
// with the [ExpParameter] attributes.
func CreateExpParameter(paramObj, attribute, param, value string) *ExpParameter {
	exptr := &ExpParameter{ParamObj: paramObj, Attribute: attribute, Param: param, Value: value}
	return exptr
}

// An ExpCfg structure holds all of the ExpParameters for a named experiment
type ExpCfg struct {
	// Name is an identifier for a group of [ExpParameters].  No
	// particular interpretation of this string is used, except as a
	// referencing label.
	Name string `json:"expname" yaml:"expname"`

	// Parameters is a list of all the [ExpParameter] objects presented
	// to the simulator for an experiment.
	Parameters []ExpParameter `json:"parameters" yaml:"parameters"`
}

// CreateExpCfg is a constructor.  Saves the offered Name and
// initializes the slice of ExpParameters.
func CreateExpCfg(name string) *ExpCfg {
	expcfg := &ExpCfg{Name: name, Parameters: make([]ExpParameter, 0)}
	return expcfg
}

// ValidateParameter returns an error if the paramObj, attribute, and
// param values don't make sense taken together within an ExpParameter.
func ValidateParameter(paramObj, attribute, param string) error {
	if !slices.Contains(ExpParamObjs, paramObj) {
		return fmt.Errorf("parameter paramObj %s is not recognized", paramObj)
	}

	// a name selector or the wild-card stands alone
	if !strings.Contains(attribute, "name%%") && attribute != "*" {
		if !slices.Contains(ExpAttributes[paramObj], attribute) {
			return fmt.Errorf("parameter attribute %s is not recognized for paramObj %s", attribute, paramObj)
		}
	}

	if !slices.Contains(ExpParams[paramObj], param) {
		return fmt.Errorf("parameter %s is not recognized for paramObj %s", param, paramObj)
	}
	return nil
}

// AddParameter accepts the four values in an ExpParameter, creates one,
// and adds it to the ExpCfg's list.  Returns an error if the parameters
// are not validated.
func (expcfg *ExpCfg) AddParameter(paramObj, attribute, param, value string) error {
	err := ValidateParameter(paramObj, attribute, param)
	if err != nil {
		return err
	}
	excp := CreateExpParameter(paramObj, attribute, param, value)
	expcfg.Parameters = append(expcfg.Parameters, *excp)
	return nil
}

// WriteToFile stores the ExpCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (expcfg *ExpCfg) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*expcfg)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*expcfg, "", "\t")
	}

	if merr != nil {
		panic(merr)
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		panic(cerr)
	}
	_, werr := f.WriteString(string(bytes[:]))
	if werr != nil {
		panic(werr)
	}
	f.Close()
	return werr
}

// ReadExpCfg deserializes a byte slice holding a representation of an
// ExpCfg struct.  If the input argument of dict (those bytes) is empty,
// the file whose name is given is read to acquire them.
func ReadExpCfg(filename string, useYAML bool, dict []byte) (*ExpCfg, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := ExpCfg{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}

	if err != nil {
		return nil, err
	}

	return &example, nil
}

// attributeRank orders parameters most-general-first so that a specific
// assignment overwrites a general one
func attributeRank(attribute string) int {
	if attribute == "*" {
		return 0
	}
	if strings.Contains(attribute, "name%%") {
		return 2
	}
	return 1
}

// selectedLinks resolves a parameter's attribute to the links it applies to
func selectedLinks(topo *Topology, attribute string) []*Link {
	if attribute == "*" {
		return topo.Links()
	}
	if strings.Contains(attribute, "name%%") {
		name := strings.Replace(attribute, "name%%", "", 1)
		lnk, present := topo.LinkByName(name)
		if !present {
			return nil
		}
		return []*Link{lnk}
	}
	rtn := make([]*Link, 0)
	for _, lnk := range topo.Links() {
		if lnk.DropPolicy() == attribute {
			rtn = append(rtn, lnk)
		}
	}
	return rtn
}

// setModelParameters applies the ExpCfg's parameters to the topology's
// links.  Parameters are applied in rank order, wild-card first, then
// policy classes, then name selectors, so the most specific value for
// any link parameter wins.
func setModelParameters(topo *Topology, expCfg *ExpCfg) error {
	ordered := make([]ExpParameter, len(expCfg.Parameters))
	copy(ordered, expCfg.Parameters)
	slices.SortStableFunc(ordered, func(a, b ExpParameter) int {
		return attributeRank(a.Attribute) - attributeRank(b.Attribute)
	})

	for _, param := range ordered {
		err := ValidateParameter(param.ParamObj, param.Attribute, param.Param)
		if err != nil {
			return err
		}

		for _, lnk := range selectedLinks(topo, param.Attribute) {
			latency := lnk.latency
			bndwdth := lnk.bndwdth
			capacity := lnk.capacity
			policy := lnk.DropPolicy()

			switch param.Param {
			case "latency":
				latency, err = strconv.ParseFloat(param.Value, 64)
			case "bandwidth":
				bndwdth, err = strconv.ParseFloat(param.Value, 64)
			case "capacity":
				capacity, err = strconv.Atoi(param.Value)
			case "policy":
				policy = param.Value
			}
			if err != nil {
				return fmt.Errorf("parameter %s value %s: %w", param.Param, param.Value, err)
			}

			err = topo.UpdateLink(lnk.linkName, latency, bndwdth, capacity, policy)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
