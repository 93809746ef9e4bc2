package account

// Step identifies one stage of a flow. Substeps are numbered from zero in
// the order listed in Steps.
type Step string

const (
	StepGenerateSeed Step = "generate-seed"
	StepSignup       Step = "signup"
	StepEncrypt      Step = "encrypt-message"
	StepDecrypt      Step = "decrypt-message"
)

type StepInfo struct {
	ID          Step
	Title       string
	Description string
	Substeps    []string
}

var Steps = []StepInfo{
	{
		ID:          StepGenerateSeed,
		Title:       "Generate seed",
		Description: "Creating a 12-word seed phrase",
		Substeps: []string{
			"Seed never leaves this machine",
			"Ready for cryptographic operations",
		},
	},
	{
		ID:          StepSignup,
		Title:       "Signup",
		Description: "Creating the account record with encrypted keys",
		Substeps: []string{
			"Deriving login hash and encryption key from seed",
			"Generating PGP key pair",
			"Encrypting private key with AES-256-GCM",
			"Storing encrypted data on server",
		},
	},
	{
		ID:          StepEncrypt,
		Title:       "Encrypt message",
		Description: "Encrypting a message to the stored public key",
		Substeps: []string{
			"Using stored public key",
			"Creating PGP encrypted message",
			"Storing encrypted message on server",
		},
	},
	{
		ID:          StepDecrypt,
		Title:       "Decrypt message",
		Description: "Decrypting with seed-derived keys",
		Substeps: []string{
			"Deriving keys from seed phrase",
			"Decrypting private key",
			"PGP decrypting the message",
			"Displaying original content",
		},
	},
}

// Observer is told when a substep of a flow completes.
type Observer func(step Step, substep int)

func (o Observer) done(step Step, substep int) {
	if o != nil {
		o(step, substep)
	}
}
