package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractUserData(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    map[string]string
	}{
		{name: "name", message: "Maria Santos", want: map[string]string{"name": "Maria Santos"}},
		{name: "name with extra spaces", message: "  Maria   Santos  ", want: map[string]string{"name": "Maria Santos"}},
		{name: "formatted cpf", message: "123.456.789-01", want: map[string]string{"cpf": "123.456.789-01"}},
		{name: "email", message: "meu email é maria@email.com", want: map[string]string{"email": "maria@email.com"}},
		{name: "phone", message: "(11) 98765-4321", want: map[string]string{"phone": "(11) 98765-4321"}},
		{name: "birth date", message: "15/05/1990", want: map[string]string{"birth_date": "1990-05-15"}},
		{name: "impossible birth date", message: "31/02/1990", want: map[string]string{}},
		{name: "lowercase name is not a name", message: "maria santos", want: map[string]string{}},
		{name: "nothing", message: "sim", want: map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractUserData(tt.message).Map())
		})
	}
}

func TestExtractUserDataSeveralFields(t *testing.T) {
	f := ExtractUserData("email joao@clinica.com.br, nascido em 01/12/1980")

	assert.Equal(t, "joao@clinica.com.br", f.Email)
	assert.Equal(t, "1980-12-01", f.BirthDate.String())
	assert.Empty(t, f.Name)
}

func TestExtractSelection(t *testing.T) {
	tests := []struct {
		message string
		want    int
		ok      bool
	}{
		{message: "2", want: 2, ok: true},
		{message: " 3 ", want: 3, ok: true},
		{message: "0", want: 0, ok: true},
		{message: "opção dois", want: 2, ok: true},
		{message: "number three", want: 3, ok: true},
		{message: "abc", ok: false},
		{message: "-1", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got, ok := ExtractSelection(tt.message)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestExtractDoctorName(t *testing.T) {
	tests := []struct {
		message string
		want    string
		ok      bool
	}{
		{message: "Quero consulta com Dr. Silva", want: "Silva", ok: true},
		{message: "agendar com dr silva para 15/01/2025", want: "Silva", ok: true},
		{message: "Quero marcar com a doutora Ana Costa amanhã", want: "Ana Costa", ok: true},
		{message: "Dra. Maria da Silva", want: "Maria Silva", ok: true},
		{message: "book with Carlos", want: "Carlos", ok: true},
		{message: "Quero agendar uma consulta", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got, ok := ExtractDoctorName(tt.message)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractDate(t *testing.T) {
	d, ok := ExtractDate("para o dia 15/01/2025")
	assert.True(t, ok)
	assert.Equal(t, "2025-01-15", d.String())

	d, ok = ExtractDate("em 2025-01-16")
	assert.True(t, ok)
	assert.Equal(t, "2025-01-16", d.String())

	d, ok = ExtractDate("5-3-2025")
	assert.True(t, ok)
	assert.Equal(t, "2025-03-05", d.String())

	_, ok = ExtractDate("32/01/2025")
	assert.False(t, ok)

	_, ok = ExtractDate("amanhã")
	assert.False(t, ok)
}

func TestExtractTime(t *testing.T) {
	tests := []struct {
		message string
		want    string
		ok      bool
	}{
		{message: "às 14:30", want: "14:30", ok: true},
		{message: "9:05 por favor", want: "09:05", ok: true},
		{message: "às 9h", want: "09:00", ok: true},
		{message: "9h30", want: "09:30", ok: true},
		{message: "25:00", ok: false},
		{message: "de manhã", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got, ok := ExtractTime(tt.message)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.Short())
			}
		})
	}
}
