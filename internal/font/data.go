package font

// Packed column-major glyph tables covering printable ASCII 32..126.
// Each column is one byte, bit 0 at the top row. The 5x7 shapes follow
// the classic HD44780 character generator; the 3x5 table is a compact
// caps-only variant (lowercase shares the uppercase shapes).

const (
	firstChar rune = 32
	lastChar  rune = 126
)

var font5x7 = [95 * 5]byte{
	0x00, 0x00, 0x00, 0x00, 0x00, // space
	0x00, 0x00, 0x5F, 0x00, 0x00, // !
	0x00, 0x07, 0x00, 0x07, 0x00, // "
	0x14, 0x7F, 0x14, 0x7F, 0x14, // #
	0x24, 0x2A, 0x7F, 0x2A, 0x12, // $
	0x23, 0x13, 0x08, 0x64, 0x62, // %
	0x36, 0x49, 0x55, 0x22, 0x50, // &
	0x00, 0x05, 0x03, 0x00, 0x00, // '
	0x00, 0x1C, 0x22, 0x41, 0x00, // (
	0x00, 0x41, 0x22, 0x1C, 0x00, // )
	0x14, 0x08, 0x3E, 0x08, 0x14, // *
	0x08, 0x08, 0x3E, 0x08, 0x08, // +
	0x00, 0x50, 0x30, 0x00, 0x00, // ,
	0x08, 0x08, 0x08, 0x08, 0x08, // -
	0x00, 0x60, 0x60, 0x00, 0x00, // .
	0x20, 0x10, 0x08, 0x04, 0x02, // /
	0x3E, 0x51, 0x49, 0x45, 0x3E, // 0
	0x00, 0x42, 0x7F, 0x40, 0x00, // 1
	0x42, 0x61, 0x51, 0x49, 0x46, // 2
	0x21, 0x41, 0x45, 0x4B, 0x31, // 3
	0x18, 0x14, 0x12, 0x7F, 0x10, // 4
	0x27, 0x45, 0x45, 0x45, 0x39, // 5
	0x3C, 0x4A, 0x49, 0x49, 0x30, // 6
	0x01, 0x71, 0x09, 0x05, 0x03, // 7
	0x36, 0x49, 0x49, 0x49, 0x36, // 8
	0x06, 0x49, 0x49, 0x29, 0x1E, // 9
	0x00, 0x36, 0x36, 0x00, 0x00, // :
	0x00, 0x56, 0x36, 0x00, 0x00, // ;
	0x00, 0x08, 0x14, 0x22, 0x41, // <
	0x14, 0x14, 0x14, 0x14, 0x14, // =
	0x41, 0x22, 0x14, 0x08, 0x00, // >
	0x02, 0x01, 0x51, 0x09, 0x06, // ?
	0x32, 0x49, 0x79, 0x41, 0x3E, // @
	0x7E, 0x11, 0x11, 0x11, 0x7E, // A
	0x7F, 0x49, 0x49, 0x49, 0x36, // B
	0x3E, 0x41, 0x41, 0x41, 0x22, // C
	0x7F, 0x41, 0x41, 0x22, 0x1C, // D
	0x7F, 0x49, 0x49, 0x49, 0x41, // E
	0x7F, 0x09, 0x09, 0x09, 0x01, // F
	0x3E, 0x41, 0x49, 0x49, 0x7A, // G
	0x7F, 0x08, 0x08, 0x08, 0x7F, // H
	0x00, 0x41, 0x7F, 0x41, 0x00, // I
	0x20, 0x40, 0x41, 0x3F, 0x01, // J
	0x7F, 0x08, 0x14, 0x22, 0x41, // K
	0x7F, 0x40, 0x40, 0x40, 0x40, // L
	0x7F, 0x02, 0x0C, 0x02, 0x7F, // M
	0x7F, 0x04, 0x08, 0x10, 0x7F, // N
	0x3E, 0x41, 0x41, 0x41, 0x3E, // O
	0x7F, 0x09, 0x09, 0x09, 0x06, // P
	0x3E, 0x41, 0x51, 0x21, 0x5E, // Q
	0x7F, 0x09, 0x19, 0x29, 0x46, // R
	0x46, 0x49, 0x49, 0x49, 0x31, // S
	0x01, 0x01, 0x7F, 0x01, 0x01, // T
	0x3F, 0x40, 0x40, 0x40, 0x3F, // U
	0x1F, 0x20, 0x40, 0x20, 0x1F, // V
	0x3F, 0x40, 0x38, 0x40, 0x3F, // W
	0x63, 0x14, 0x08, 0x14, 0x63, // X
	0x07, 0x08, 0x70, 0x08, 0x07, // Y
	0x61, 0x51, 0x49, 0x45, 0x43, // Z
	0x00, 0x7F, 0x41, 0x41, 0x00, // [
	0x02, 0x04, 0x08, 0x10, 0x20, // backslash
	0x00, 0x41, 0x41, 0x7F, 0x00, // ]
	0x04, 0x02, 0x01, 0x02, 0x04, // ^
	0x40, 0x40, 0x40, 0x40, 0x40, // _
	0x00, 0x01, 0x02, 0x04, 0x00, // `
	0x20, 0x54, 0x54, 0x54, 0x78, // a
	0x7F, 0x48, 0x44, 0x44, 0x38, // b
	0x38, 0x44, 0x44, 0x44, 0x20, // c
	0x38, 0x44, 0x44, 0x48, 0x7F, // d
	0x38, 0x54, 0x54, 0x54, 0x18, // e
	0x08, 0x7E, 0x09, 0x01, 0x02, // f
	0x0C, 0x52, 0x52, 0x52, 0x3E, // g
	0x7F, 0x08, 0x04, 0x04, 0x78, // h
	0x00, 0x44, 0x7D, 0x40, 0x00, // i
	0x20, 0x40, 0x44, 0x3D, 0x00, // j
	0x7F, 0x10, 0x28, 0x44, 0x00, // k
	0x00, 0x41, 0x7F, 0x40, 0x00, // l
	0x7C, 0x04, 0x18, 0x04, 0x78, // m
	0x7C, 0x08, 0x04, 0x04, 0x78, // n
	0x38, 0x44, 0x44, 0x44, 0x38, // o
	0x7C, 0x14, 0x14, 0x14, 0x08, // p
	0x08, 0x14, 0x14, 0x18, 0x7C, // q
	0x7C, 0x08, 0x04, 0x04, 0x08, // r
	0x48, 0x54, 0x54, 0x54, 0x20, // s
	0x04, 0x3F, 0x44, 0x40, 0x20, // t
	0x3C, 0x40, 0x40, 0x20, 0x7C, // u
	0x1C, 0x20, 0x40, 0x20, 0x1C, // v
	0x3C, 0x40, 0x30, 0x40, 0x3C, // w
	0x44, 0x28, 0x10, 0x28, 0x44, // x
	0x0C, 0x50, 0x50, 0x50, 0x3C, // y
	0x44, 0x64, 0x54, 0x4C, 0x44, // z
	0x00, 0x08, 0x36, 0x41, 0x00, // {
	0x00, 0x00, 0x7F, 0x00, 0x00, // |
	0x00, 0x41, 0x36, 0x08, 0x00, // }
	0x08, 0x04, 0x08, 0x10, 0x08, // ~
}

var font3x5 = [95 * 3]byte{
	0x00, 0x00, 0x00, // space
	0x00, 0x17, 0x00, // !
	0x03, 0x00, 0x03, // "
	0x1F, 0x0A, 0x1F, // #
	0x16, 0x1F, 0x0D, // $
	0x19, 0x04, 0x13, // %
	0x1A, 0x15, 0x1A, // &
	0x00, 0x03, 0x00, // '
	0x0E, 0x11, 0x00, // (
	0x00, 0x11, 0x0E, // )
	0x0A, 0x04, 0x0A, // *
	0x04, 0x0E, 0x04, // +
	0x10, 0x08, 0x00, // ,
	0x04, 0x04, 0x04, // -
	0x00, 0x10, 0x00, // .
	0x18, 0x04, 0x03, // /
	0x1F, 0x11, 0x1F, // 0
	0x12, 0x1F, 0x10, // 1
	0x1D, 0x15, 0x17, // 2
	0x15, 0x15, 0x1F, // 3
	0x07, 0x04, 0x1F, // 4
	0x17, 0x15, 0x1D, // 5
	0x1F, 0x15, 0x1D, // 6
	0x01, 0x01, 0x1F, // 7
	0x1F, 0x15, 0x1F, // 8
	0x17, 0x15, 0x1F, // 9
	0x00, 0x0A, 0x00, // :
	0x10, 0x0A, 0x00, // ;
	0x04, 0x0A, 0x11, // <
	0x0A, 0x0A, 0x0A, // =
	0x11, 0x0A, 0x04, // >
	0x01, 0x15, 0x07, // ?
	0x0E, 0x15, 0x16, // @
	0x1E, 0x05, 0x1E, // A
	0x1F, 0x15, 0x0A, // B
	0x0E, 0x11, 0x11, // C
	0x1F, 0x11, 0x0E, // D
	0x1F, 0x15, 0x15, // E
	0x1F, 0x05, 0x05, // F
	0x0E, 0x11, 0x1D, // G
	0x1F, 0x04, 0x1F, // H
	0x11, 0x1F, 0x11, // I
	0x08, 0x10, 0x0F, // J
	0x1F, 0x04, 0x1B, // K
	0x1F, 0x10, 0x10, // L
	0x1F, 0x02, 0x1F, // M
	0x1F, 0x01, 0x1F, // N (approx)
	0x0E, 0x11, 0x0E, // O
	0x1F, 0x05, 0x02, // P
	0x0E, 0x11, 0x1E, // Q
	0x1F, 0x05, 0x1A, // R
	0x16, 0x15, 0x0D, // S
	0x01, 0x1F, 0x01, // T
	0x0F, 0x10, 0x1F, // U
	0x0F, 0x10, 0x0F, // V
	0x1F, 0x08, 0x1F, // W
	0x1B, 0x04, 0x1B, // X
	0x03, 0x1C, 0x03, // Y
	0x19, 0x15, 0x13, // Z
	0x1F, 0x11, 0x00, // [
	0x03, 0x04, 0x18, // backslash
	0x00, 0x11, 0x1F, // ]
	0x02, 0x01, 0x02, // ^
	0x10, 0x10, 0x10, // _
	0x01, 0x02, 0x00, // `
	0x1E, 0x05, 0x1E, // a = A
	0x1F, 0x15, 0x0A, // b = B
	0x0E, 0x11, 0x11, // c = C
	0x1F, 0x11, 0x0E, // d = D
	0x1F, 0x15, 0x15, // e = E
	0x1F, 0x05, 0x05, // f = F
	0x0E, 0x11, 0x1D, // g = G
	0x1F, 0x04, 0x1F, // h = H
	0x11, 0x1F, 0x11, // i = I
	0x08, 0x10, 0x0F, // j = J
	0x1F, 0x04, 0x1B, // k = K
	0x1F, 0x10, 0x10, // l = L
	0x1F, 0x02, 0x1F, // m = M
	0x1F, 0x01, 0x1F, // n = N
	0x0E, 0x11, 0x0E, // o = O
	0x1F, 0x05, 0x02, // p = P
	0x0E, 0x11, 0x1E, // q = Q
	0x1F, 0x05, 0x1A, // r = R
	0x16, 0x15, 0x0D, // s = S
	0x01, 0x1F, 0x01, // t = T
	0x0F, 0x10, 0x1F, // u = U
	0x0F, 0x10, 0x0F, // v = V
	0x1F, 0x08, 0x1F, // w = W
	0x1B, 0x04, 0x1B, // x = X
	0x03, 0x1C, 0x03, // y = Y
	0x19, 0x15, 0x13, // z = Z
	0x04, 0x1F, 0x11, // {
	0x00, 0x1F, 0x00, // |
	0x11, 0x1F, 0x04, // }
	0x02, 0x04, 0x02, // ~
}
