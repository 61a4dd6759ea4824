// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cipher maps 64-bit tagged cipher identifiers to their canonical
// ACVP string name and cipher family. The mapping is static and total for
// every single-bit identifier; combined identifiers (multiple feature bits
// OR-ed together within one family) are never looked up directly — callers
// iterate set bits themselves.
package cipher

// ID is a 64-bit cipher identifier: a 12-bit family tag in the high bits
// plus up to 52 feature bits. Identifiers within the same family may be
// OR-combined to express a capability set.
type ID uint64

// Family identifies the top-level algorithm family a cipher ID belongs to.
type Family uint16

const (
	FamilyUnknown Family = iota
	FamilyAES
	FamilyTDES
	FamilyAEAD
	FamilyHash
	FamilyMAC
	FamilyECC
	FamilyDRBG
)

// familyMask isolates the 12-bit family tag occupying the top three nibbles
// of the 64-bit identifier, matching the original ACVP_CIPHERTYPE mask.
const familyMask ID = 0xfff0000000000000

const (
	tagAES  ID = 0x0010000000000000
	tagTDES ID = 0x0020000000000000
	tagAEAD ID = 0x0040000000000000
	tagHash ID = 0x0080000000000000
	tagMAC  ID = 0x0100000000000000
	tagECC  ID = 0x0200000000000000
	tagDRBG ID = 0x0400000000000000
)

// Single-bit cipher identifiers. Values and groupings follow the original
// ACVP proxy's cipher_definitions.h so the wire names stay byte-identical.
const (
	ECB    = tagAES | 0x0000000000000001
	CBC    = tagAES | 0x0000000000000002
	XTS    = tagAES | 0x0000000000000004
	OFB    = tagAES | 0x0000000000000008
	CFB1   = tagAES | 0x0000000000000010
	CFB8   = tagAES | 0x0000000000000020
	CFB128 = tagAES | 0x0000000000000040
	KW     = tagAES | 0x0000000000000080
	KWP    = tagAES | 0x0000000000000100
	CTR    = tagAES | 0x0000000000000200
	AES128 = tagAES | 0x0000000000000400
	AES192 = tagAES | 0x0000000000000800
	AES256 = tagAES | 0x0000000000001000
	XPN    = tagAES | 0x0000000000002000

	GCM = tagAEAD | 0x0000000100000000
	CCM = tagAEAD | 0x0000000200000000

	TDESECB    = tagTDES | 0x0000000000010000
	TDESCBC    = tagTDES | 0x0000000000020000
	TDESOFB    = tagTDES | 0x0000000000080000
	TDESCFB1   = tagTDES | 0x0000000000100000
	TDESCFB8   = tagTDES | 0x0000000000200000
	TDESCFB64  = tagTDES | 0x0000000000400000
	TDESKW     = tagTDES | 0x0000000000800000
	TDESCTR    = tagTDES | 0x0000000001000000
	TDESCBCI   = tagTDES | 0x0000000002000000
	TDESOFBI   = tagTDES | 0x0000000004000000
	TDESCFBP1  = tagTDES | 0x0000000008000000
	TDESCFBP8  = tagTDES | 0x0000000010000000
	TDESCFBP64 = tagTDES | 0x0000000020000000
	TDES       = tagTDES | 0x0000000040000000

	SHA1       = tagHash | 0x0000001000000000
	SHA224     = tagHash | 0x0000002000000000
	SHA256     = tagHash | 0x0000004000000000
	SHA384     = tagHash | 0x0000008000000000
	SHA512     = tagHash | 0x0000010000000000
	SHA512224  = tagHash | 0x0000020000000000
	SHA512256  = tagHash | 0x0000040000000000
	SHA3224    = tagHash | 0x0000080000000000
	SHA3256    = tagHash | 0x0000100000000000
	SHA3384    = tagHash | 0x0000200000000000
	SHA3512    = tagHash | 0x0000400000000000
	SHAKE128   = tagHash | 0x0000000000001000
	SHAKE256   = tagHash | 0x0000000000002000

	HMACSHA1      = tagMAC | 0x0000000000000001
	HMACSHA2224   = tagMAC | 0x0000000000000002
	HMACSHA2256   = tagMAC | 0x0000000000000004
	HMACSHA2384   = tagMAC | 0x0000000000000008
	HMACSHA2512   = tagMAC | 0x0000000000000010
	HMACSHA2512224 = tagMAC | 0x0000000000000020
	HMACSHA2512256 = tagMAC | 0x0000000000000040
	HMACSHA3224   = tagMAC | 0x0000000000000080
	HMACSHA3256   = tagMAC | 0x0000000000000100
	HMACSHA3384   = tagMAC | 0x0000000000000200
	HMACSHA3512   = tagMAC | 0x0000000000000400
	CMACAES       = tagMAC | 0x0000000010000000
	CMACAES128    = tagMAC | 0x0000000020000000
	CMACAES192    = tagMAC | 0x0000000040000000
	CMACAES256    = tagMAC | 0x0000000080000000
	CMACTDES      = tagMAC | 0x0000000100000000

	NISTP224 = tagECC | 0x0000000000000001
	NISTP256 = tagECC | 0x0000000000000002
	NISTP384 = tagECC | 0x0000000000000004
	NISTP521 = tagECC | 0x0000000000000008
	NISTK233 = tagECC | 0x0000000000000010
	NISTK283 = tagECC | 0x0000000000000020
	NISTK409 = tagECC | 0x0000000000000040
	NISTK571 = tagECC | 0x0000000000000080
	NISTB233 = tagECC | 0x0000000000000100
	NISTB283 = tagECC | 0x0000000000000200
	NISTB409 = tagECC | 0x0000000000000400
	NISTB571 = tagECC | 0x0000000000000800
	ED25519  = tagECC | 0x0000000000001000
	ED448    = tagECC | 0x0000000000002000

	DRBGCTR  = tagDRBG | 0x0000000000000001
	DRBGHMAC = tagDRBG | 0x0000000000000002
	DRBGHASH = tagDRBG | 0x0000000000000004

	Unknown ID = 0
)

var names = map[ID]string{
	ECB: "AES-ECB", CBC: "AES-CBC", XTS: "AES-XTS", OFB: "AES-OFB",
	CFB1: "AES-CFB1", CFB8: "AES-CFB8", CFB128: "AES-CFB128", KW: "AES-KW",
	KWP: "AES-KWP", CTR: "AES-CTR", AES128: "AES-128", AES192: "AES-192",
	AES256: "AES-256", XPN: "AES-XPN", GCM: "AES-GCM", CCM: "AES-CCM",

	TDESECB: "TDES-ECB", TDESCBC: "TDES-CBC", TDESOFB: "TDES-OFB",
	TDESCFB1: "TDES-CFB1", TDESCFB8: "TDES-CFB8", TDESCFB64: "TDES-CFB64",
	TDESKW: "TDES-KW", TDESCTR: "TDES-CTR", TDESCBCI: "TDES-CBC-I",
	TDESCFBP1: "TDES-CFB-P1", TDESCFBP8: "TDES-CFB-P8",
	TDESCFBP64: "TDES-CFB-P64", TDESOFBI: "TDES-OFB-I", TDES: "TDES",

	HMACSHA1: "HMAC-SHA-1", HMACSHA2224: "HMAC-SHA2-224",
	HMACSHA2256: "HMAC-SHA2-256", HMACSHA2384: "HMAC-SHA2-384",
	HMACSHA2512: "HMAC-SHA2-512", HMACSHA2512224: "HMAC-SHA-512/224",
	HMACSHA2512256: "HMAC-SHA-512/256", HMACSHA3224: "HMAC-SHA3-224",
	HMACSHA3256: "HMAC-SHA3-256", HMACSHA3384: "HMAC-SHA3-384",
	HMACSHA3512: "HMAC-SHA3-512",

	SHA1: "SHA-1", SHA224: "SHA2-224", SHA256: "SHA2-256", SHA384: "SHA2-384",
	SHA512: "SHA2-512", SHA512224: "SHA2-512/224", SHA512256: "SHA2-512/256",
	SHA3224: "SHA3-224", SHA3256: "SHA3-256", SHA3384: "SHA3-384",
	SHA3512: "SHA3-512", SHAKE128: "SHAKE-128", SHAKE256: "SHAKE-256",

	NISTP224: "P-224", NISTP256: "P-256", NISTP384: "P-384", NISTP521: "P-521",
	NISTB233: "B-233", NISTB283: "B-283", NISTB409: "B-409", NISTB571: "B-571",
	NISTK233: "K-233", NISTK283: "K-283", NISTK409: "K-409", NISTK571: "K-571",
	ED25519: "ED-25519", ED448: "ED-448",

	DRBGCTR: "ctrDRBG", DRBGHASH: "hashDRBG", DRBGHMAC: "hmacDRBG",

	CMACAES: "CMAC-AES", CMACAES128: "CMAC-AES128", CMACAES192: "CMAC-AES192",
	CMACAES256: "CMAC-AES256", CMACTDES: "CMAC-TDES",
}

// Name returns the canonical ACVP string name for a single-bit cipher ID.
// It returns false for an unknown or combined identifier.
func Name(id ID) (string, bool) {
	name, ok := names[id]
	return name, ok
}

// Match reports whether id has every bit set in mask.
func Match(id, mask ID) bool {
	return id&mask == mask
}

// FamilyOf returns the family tag embedded in id's high bits.
func FamilyOf(id ID) Family {
	switch id & familyMask {
	case tagAES:
		return FamilyAES
	case tagTDES:
		return FamilyTDES
	case tagAEAD:
		return FamilyAEAD
	case tagHash:
		return FamilyHash
	case tagMAC:
		return FamilyMAC
	case tagECC:
		return FamilyECC
	case tagDRBG:
		return FamilyDRBG
	default:
		return FamilyUnknown
	}
}
