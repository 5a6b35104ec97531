package messages

import "buildClient/internal/prompt"

type PasswordEnteredMsg string

type TrustChosenMsg prompt.TrustChoice

type PromptCancelledMsg struct{}
