package settlement

import "math/bits"

// Gross calcula o payout bruto pro-rata de um stake vencedor: o bettor recupera
// o próprio stake mais a fração proporcional do pool perdedor, com divisão
// inteira (floor) para resultado determinístico.
//
//	gross = s + s*L/W
//
// Sem teto de aposta configurado o produto s*L estoura int64, então a fração é
// calculada com intermediário de 128 bits. O chamador garante
// 0 < stakeCents <= winTotal; com isso o quociente cabe em int64.
func Gross(stakeCents, winTotal, loseTotal int64) int64 {
	hi, lo := bits.Mul64(uint64(stakeCents), uint64(loseTotal))
	share, _ := bits.Div64(hi, lo, uint64(winTotal))
	return stakeCents + int64(share)
}

// Split aplica a divisão de lucro com a beneficiária: metade do lucro líquido
// (floor) vai para a conta de caridade, o restante volta ao bettor junto com o
// stake original. userCents + charityCents == gross sempre.
func Split(stakeCents, winTotal, loseTotal int64) (userCents, charityCents int64) {
	gross := Gross(stakeCents, winTotal, loseTotal)
	profit := gross - stakeCents
	charityCents = profit / 2
	userCents = stakeCents + (profit - charityCents)
	return userCents, charityCents
}
