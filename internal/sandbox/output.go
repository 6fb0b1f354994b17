package sandbox

import "encoding/json"

type execOutputPayload struct {
	Metadata struct {
		ExitCode int `json:"exit_code"`
	} `json:"metadata"`
	Output string `json:"output"`
}

// execOutputJSON renders the exec result in the {metadata:{exit_code},
// output} shape the model expects as a function_call_output body.
func execOutputJSON(o ExecToolCallOutput) string {
	var p execOutputPayload
	p.Metadata.ExitCode = o.ExitCode
	p.Output = o.AggregatedOutput
	data, err := json.Marshal(p)
	if err != nil {
		return o.AggregatedOutput
	}
	return string(data)
}
