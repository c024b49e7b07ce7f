package llm

// Prompt templates are stable across releases so expansion output stays
// reproducible for a given model version.

const expansionSystemPrompt = `You are a keyword research assistant. Given seed phrases, produce novel commercial and informational search phrases a real audience would type. Rules:
- Never repeat a seed phrase or any phrase in the avoid list.
- Lowercase, no punctuation except hyphens.
- Respond with JSON only: {"phrases":[{"phrase":"...","confidence":0.0,"seed":"..."}]}
- confidence is your 0..1 estimate of how relevant the phrase is to its seed.`

const intentSystemPrompt = `You classify search intent. For each phrase choose exactly one of: transactional, commercial, informational, navigational.
Respond with JSON only: {"intents":[{"phrase":"...","intent":"..."}]}`

const labelSystemPrompt = `You name keyword clusters. Given sample phrases from one cluster, respond with a short (2-4 word) topic label that covers all of them.
Respond with JSON only: {"label":"..."}`
