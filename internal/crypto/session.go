package crypto

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/awnumar/memguard"
	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyPassphrase = errors.New("empty passphrase")
	ErrSessionClosed   = errors.New("session destroyed")
)

// Options configures a Session.
type Options struct {
	// EncLoops is the stretch difficulty. Zero is accepted and gives no
	// stretching at all.
	EncLoops int64

	// RequirePinned turns a failure to mlock secret buffers into an error.
	RequirePinned bool

	// StrictRandom refuses the pseudo-random fallback for salts.
	StrictRandom bool

	// RandomDevice overrides DefaultRandomDevice.
	RandomDevice string

	Logger *logrus.Logger
}

// Session holds the stretched master hash and salted passphrase for one
// vault. Both are written once in NewSession and only read afterwards, so a
// Session may be shared between goroutines.
type Session struct {
	hash   secret
	pass   secret
	opts   Options
	log    *logrus.Logger
	rand   *RandomSource
	closed atomic.Bool
}

// secret is implemented by *memguard.LockedBuffer and *SecureBuffer.
type secret interface {
	Bytes() []byte
	Destroy()
}

// lockBuffer allocates the memguard buffers behind a Session.
var lockBuffer = memguard.NewBuffer

// lockSecrets copies each source into a frozen memguard buffer. memguard
// panics when it cannot lock memory, after purging every buffer it holds.
// Without requirePinned that panic is recovered and all the secrets go to
// unpinned SecureBuffers instead. The sources are left intact.
func lockSecrets(requirePinned bool, log *logrus.Logger, srcs ...[]byte) (out []secret, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if requirePinned {
			out, err = nil, fmt.Errorf("%w: %v", ErrPinFailed, r)
			return
		}
		log.WithField("error", r).Warn("Cannot lock session memory, keeping secrets in unpinned buffers")
		out, err = make([]secret, len(srcs)), nil
		for i, src := range srcs {
			b, _ := NewSecureBuffer(len(src), false)
			copy(b.Bytes(), src)
			out[i] = b
		}
	}()

	out = make([]secret, len(srcs))
	for i, src := range srcs {
		lb := lockBuffer(len(src))
		lb.Copy(src)
		lb.Freeze()
		out[i] = lb
	}
	return out, nil
}

// NewSession stretches archiveSalt || passphrase and keeps the result in
// locked memory. The caller still owns and must wipe passphrase.
func NewSession(passphrase, archiveSalt []byte, opts Options) (*Session, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}

	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}

	saltPass, err := NewSecureBuffer(len(archiveSalt)+len(passphrase), opts.RequirePinned)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate passphrase buffer: %w", err)
	}
	defer saltPass.Destroy()
	copy(saltPass.Bytes(), archiveSalt)
	copy(saltPass.Bytes()[len(archiveSalt):], passphrase)

	log.Debugf("Hashing passphrase %d (%d) times", opts.EncLoops, StretchIterations(opts.EncLoops, saltPass.Len()))
	master, err := Stretch(saltPass.Bytes(), opts.EncLoops, opts.RequirePinned)
	if err != nil {
		return nil, err
	}
	defer master.Destroy()

	secrets, err := lockSecrets(opts.RequirePinned, log, master.Bytes(), saltPass.Bytes())
	if err != nil {
		return nil, err
	}

	return &Session{
		hash: secrets[0],
		pass: secrets[1],
		opts: opts,
		log:  log,
		rand: &RandomSource{
			Device: opts.RandomDevice,
			Strict: opts.StrictRandom,
			Log:    log,
		},
	}, nil
}

// EncLoops returns the loop count the session was stretched with.
func (s *Session) EncLoops() int64 {
	return s.opts.EncLoops
}

// Random returns the session's salt source.
func (s *Session) Random() *RandomSource {
	return s.rand
}

// NewSalt returns a fresh per-block salt.
func (s *Session) NewSalt() ([]byte, error) {
	return s.rand.NewSalt()
}

// EncryptBlock encrypts buf in place using salt.
func (s *Session) EncryptBlock(buf, salt []byte) error {
	return Crypt(s, buf, salt, ModeEncrypt)
}

// DecryptBlock decrypts buf in place using salt.
func (s *Session) DecryptBlock(buf, salt []byte) error {
	return Crypt(s, buf, salt, ModeDecrypt)
}

// ValidateBlock decrypts buf in place for comparison against an expected
// value. It logs nothing.
func (s *Session) ValidateBlock(buf, salt []byte) error {
	return Crypt(s, buf, salt, ModeValidate)
}

// Destroy wipes the session secrets. The session is unusable afterwards.
func (s *Session) Destroy() {
	if s == nil || s.closed.Swap(true) {
		return
	}
	if s.hash != nil {
		s.hash.Destroy()
	}
	if s.pass != nil {
		s.pass.Destroy()
	}
}

func (s *Session) secrets() (hash, pass []byte, err error) {
	if s == nil || s.hash == nil || s.closed.Load() {
		return nil, nil, fmt.Errorf("%w: %w", ErrCryptoFailed, ErrSessionClosed)
	}
	// A memguard purge elsewhere empties the buffers without closing s
	hash, pass = s.hash.Bytes(), s.pass.Bytes()
	if len(hash) == 0 || len(pass) == 0 {
		return nil, nil, fmt.Errorf("%w: %w", ErrCryptoFailed, ErrSessionClosed)
	}
	return hash, pass, nil
}
