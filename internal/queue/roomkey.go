package queue

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/tyler-smith/go-bip39/wordlists"
)

// wordlist is the BIP39 English wordlist (2048 words). Three words plus a
// two-digit number gives 2048^3 × 100 ≈ 8.6 × 10^11 room keys.
var wordlist = wordlists.English

const roomKeyWords = 3

// GenerateRoomKey creates a random, human-readable room key such as
// "apple-river-stone-42". Words are picked with crypto/rand.
func GenerateRoomKey() (string, error) {
	parts := make([]string, 0, roomKeyWords+1)
	for i := 0; i < roomKeyWords; i++ {
		n, err := randInt(len(wordlist))
		if err != nil {
			return "", err
		}
		parts = append(parts, wordlist[n])
	}
	num, err := randInt(100)
	if err != nil {
		return "", err
	}
	parts = append(parts, fmt.Sprintf("%02d", num))
	return strings.Join(parts, "-"), nil
}

// GeneratePlayerToken creates the device-private token (random UUIDv4).
func GeneratePlayerToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate player token: %w", err)
	}
	return id.String(), nil
}

func randInt(limit int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return int(n.Int64()), nil
}
