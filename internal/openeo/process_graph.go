package openeo

// Node is one process invocation in an openEO process graph.
type Node struct {
	ProcessID string                 `json:"process_id"`
	Arguments map[string]interface{} `json:"arguments"`
	Result    bool                   `json:"result,omitempty"`
}

// ProcessGraph maps node ids to nodes. Exactly one node carries Result.
type ProcessGraph map[string]Node

// FromNode references the output of another node.
func FromNode(id string) map[string]interface{} {
	return map[string]interface{}{"from_node": id}
}

// FromParameter references a callback parameter ("data", "x", ...).
func FromParameter(name string) map[string]interface{} {
	return map[string]interface{}{"from_parameter": name}
}

// Callback wraps a child process graph used as a reducer.
func Callback(graph ProcessGraph) map[string]interface{} {
	return map[string]interface{}{"process_graph": graph}
}

// SpatialExtent is a lon/lat bounding box.
type SpatialExtent struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// NormalizedDifferenceReducer builds the band reducer (a - b) / (a + b) over
// the bands array, where a and b are positions in that array.
func NormalizedDifferenceReducer(a, b int) ProcessGraph {
	return ProcessGraph{
		"a": {ProcessID: "array_element", Arguments: map[string]interface{}{"data": FromParameter("data"), "index": a}},
		"b": {ProcessID: "array_element", Arguments: map[string]interface{}{"data": FromParameter("data"), "index": b}},
		"diff": {ProcessID: "subtract", Arguments: map[string]interface{}{"x": FromNode("a"), "y": FromNode("b")}},
		"sum":  {ProcessID: "add", Arguments: map[string]interface{}{"x": FromNode("a"), "y": FromNode("b")}},
		"nd": {
			ProcessID: "divide",
			Arguments: map[string]interface{}{"x": FromNode("diff"), "y": FromNode("sum")},
			Result:    true,
		},
	}
}

// SimpleReducer is a single-process reducer such as "mean".
func SimpleReducer(process string) ProcessGraph {
	return ProcessGraph{
		"r": {ProcessID: process, Arguments: map[string]interface{}{"data": FromParameter("data")}, Result: true},
	}
}
