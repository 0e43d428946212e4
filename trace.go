package cnsim

// trace.go implements the trace gathering layer.  When active, the
// trace manager records every lifecycle step of every packet, keyed by
// packet id, and serializes the whole collection for post-run analysis.

import (
	"encoding/json"
	"os"
	"path"
	"strconv"

	"gopkg.in/yaml.v3"
)

// A TraceInst records one lifecycle step of one packet
type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	Op        string `json:"op" yaml:"op"`
	Detail    string `json:"detail" yaml:"detail"`
}

// NameType is an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TraceManager gathers information about an execution of the
// simulation.  By testing the InUse flag we can inhibit the activity of
// gathering a trace when we don't want it, while embedding calls to its
// methods everywhere we need them when it is.
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each objID
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment, keyed by packet id
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the
// experiment and a flag indicating whether the trace manager is active.
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the trace manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// AddTrace creates a record of one packet lifecycle step and stores it
func (tm *TraceManager) AddTrace(time float64, packetID int, op, detail string) {
	if !tm.InUse {
		return
	}

	_, present := tm.Traces[packetID]
	if !present {
		tm.Traces[packetID] = make([]TraceInst, 0)
	}
	traceTime := strconv.FormatFloat(time, 'f', -1, 64)
	tm.Traces[packetID] = append(tm.Traces[packetID],
		TraceInst{TraceTime: traceTime, Op: op, Detail: detail})
}

// AddName is used to add an element to the id -> (name,type) dictionary
// for the trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if tm.InUse {
		_, present := tm.NameByID[id]
		if present {
			panic("duplicated id in AddName")
		}
		tm.NameByID[id] = NameType{Name: name, Type: objDesc}
	}
}

// clear discards the gathered traces but keeps the name dictionary
func (tm *TraceManager) clear() {
	tm.Traces = make(map[int][]TraceInst)
}

// WriteToFile stores the Traces struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension
// of this name.
func (tm *TraceManager) WriteToFile(filename string) bool {
	if !tm.InUse {
		return false
	}
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*tm)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*tm, "", "\t")
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
	return true
}
