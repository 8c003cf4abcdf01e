package town

// Session is the credential pair issued to one joined player for one
// connection lifetime. It is never mutated after creation.
type Session struct {
	token      string
	player     *Player
	videoToken string
}

// Token is the secret the transport presents to subscribe to the town.
func (s *Session) Token() string {
	return s.token
}

// Player returns the player this session was issued for.
func (s *Session) Player() *Player {
	return s.player
}

// VideoToken is the auxiliary credential for the companion media channel.
func (s *Session) VideoToken() string {
	return s.videoToken
}
