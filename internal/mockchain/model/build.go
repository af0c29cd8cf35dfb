package model

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrBadSignature = errors.New("signature does not match sender")

func BuildBlock(
	number uint64,
	parentHash common.Hash,
	txs []Tx,
	timestamp int64,
	nonce uint64,
) Block {
	txHashes := make([]common.Hash, 0, len(txs))
	for _, tx := range txs {
		txHashes = append(txHashes, tx.Hash)
	}

	header := BlockHeader{
		Number:     number,
		ParentHash: parentHash,
		Timestamp:  timestamp,
		TxRoot:     TxRoot(txHashes),
		Nonce:      nonce,
	}
	return Block{
		Header: header,
		Hash:   HashHeader(header),
		Txs:    txs,
	}
}

func HashHeader(header BlockHeader) common.Hash {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, header.Number)
	_ = binary.Write(&buf, binary.BigEndian, header.Timestamp)
	buf.Write(header.ParentHash[:])
	buf.Write(header.TxRoot[:])
	_ = binary.Write(&buf, binary.BigEndian, header.Nonce)
	return crypto.Keccak256Hash(buf.Bytes())
}

// TxRoot commits to the set of tx hashes, independent of their order.
func TxRoot(txHashes []common.Hash) common.Hash {
	sorted := slices.Clone(txHashes)
	slices.SortFunc(sorted, func(a, b common.Hash) int {
		return bytes.Compare(a[:], b[:])
	})
	var buf bytes.Buffer
	for _, h := range sorted {
		buf.Write(h[:])
	}
	return crypto.Keccak256Hash(buf.Bytes())
}

func HashTxCanonical(body TxBody) common.Hash {
	var buf bytes.Buffer
	writeBytes(&buf, body.From[:])
	writeBytes(&buf, body.To[:])
	amt := body.Amount
	if amt == nil {
		amt = new(big.Int)
	}
	writeBytes(&buf, amt.Bytes())
	_ = binary.Write(&buf, binary.BigEndian, body.Nonce)
	_ = binary.Write(&buf, binary.BigEndian, body.Timestamp)
	return crypto.Keccak256Hash(buf.Bytes())
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint64(len(b)))
	buf.Write(b)
}

// SignTx hashes body and signs the hash with key. body.From is overwritten with the
// key's address.
func SignTx(body TxBody, key *ecdsa.PrivateKey) (Tx, error) {
	body.From = crypto.PubkeyToAddress(key.PublicKey)
	h := HashTxCanonical(body)
	sig, err := crypto.Sign(h[:], key)
	if err != nil {
		return Tx{}, err
	}
	return Tx{Hash: h, TxBody: body, Signature: sig}, nil
}

// Verify checks that tx.Hash is the canonical hash of its body and that the signature
// recovers to TxBody.From.
func Verify(tx Tx) error {
	if HashTxCanonical(tx.TxBody) != tx.Hash {
		return errors.New("tx hash does not match body")
	}
	if len(tx.Signature) != crypto.SignatureLength {
		return ErrBadSignature
	}
	pub, err := crypto.SigToPub(tx.Hash[:], tx.Signature)
	if err != nil {
		return ErrBadSignature
	}
	if crypto.PubkeyToAddress(*pub) != tx.TxBody.From {
		return ErrBadSignature
	}
	return nil
}
