package models

// NavigationDestination is the screen the client lands on after startup resolution.
type NavigationDestination string

const (
	DestinationOnboarding        NavigationDestination = "Onboarding"
	DestinationLogin             NavigationDestination = "Login"
	DestinationEmailVerification NavigationDestination = "EmailVerification"
	DestinationMain              NavigationDestination = "Main"
)

// Valid reports whether d is one of the four known destinations.
func (d NavigationDestination) Valid() bool {
	switch d {
	case DestinationOnboarding, DestinationLogin, DestinationEmailVerification, DestinationMain:
		return true
	}
	return false
}

func (d NavigationDestination) String() string { return string(d) }
