package model

import "encoding/json"

func EncodeBlock(b Block) ([]byte, error) { return json.Marshal(b) }
func DecodeBlock(raw []byte) (Block, error) {
	var b Block
	err := json.Unmarshal(raw, &b)
	return b, err
}

func EncodeReceipt(r Receipt) ([]byte, error) { return json.Marshal(r) }
func DecodeReceipt(raw []byte) (Receipt, error) {
	var r Receipt
	err := json.Unmarshal(raw, &r)
	return r, err
}

func EncodeAccount(a Account) ([]byte, error) { return json.Marshal(a) }
func DecodeAccount(raw []byte) (Account, error) {
	var a Account
	err := json.Unmarshal(raw, &a)
	return a, err
}
