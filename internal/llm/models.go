package llm

// Model describes one chat model offered by the provider.
type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextLength int    `json:"context_length"`
}

// Models is the Groq catalogue. The first entry is the fallback.
var Models = []Model{
	{ID: "gemma2-9b-it", Name: "Gemma 2 9B IT", ContextLength: 8192},
	{ID: "meta-llama/llama-4-scout-17b-16e-instruct", Name: "Llama 4 Scout 17B", ContextLength: 128000},
	{ID: "meta-llama/llama-4-maverick-17b-128e-instruct", Name: "Llama 4 Maverick 17B", ContextLength: 128000},
	{ID: "llama3-70b-8192", Name: "Llama 3 70B", ContextLength: 8192},
	{ID: "qwen/qwen3-32b", Name: "Qwen 3 32B", ContextLength: 131072},
	{ID: "llama-3.3-70b-versatile", Name: "Llama 3.3 70B Versatile", ContextLength: 8192},
	{ID: "deepseek-r1-distill-llama-70b", Name: "DeepSeek R1 Distill Llama 70B", ContextLength: 8192},
	{ID: "llama-3.1-8b-instant", Name: "Llama 3.1 8B Instant", ContextLength: 8192},
	{ID: "llama3-8b-8192", Name: "Llama 3 8B", ContextLength: 8192},
}

// LookupModel returns the catalogue entry for id and whether it was found.
// Unknown ids resolve to the first model.
func LookupModel(id string) (Model, bool) {
	for _, m := range Models {
		if m.ID == id {
			return m, true
		}
	}
	return Models[0], false
}
