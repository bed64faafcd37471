package prompts

const (
	DefaultSystem = "You are a loving grandmother speaking to your grandchild. Be warm, caring, and supportive."

	Greeting = "Hello! I'm so happy to talk with you."
	Farewell = "Goodbye my dear. I love you!"
	Fallback = "I didn't quite catch that, dear."
)

// ForSession resolves the final system prompt for a session.
func ForSession(systemPrompt string) string {
	if systemPrompt != "" {
		return systemPrompt
	}
	return DefaultSystem
}
